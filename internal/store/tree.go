package store

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/gateway"
	"github.com/hpungsan/topicnav/internal/logging"
	"github.com/hpungsan/topicnav/internal/topic"
)

// TreeState is a snapshot of the domain tree store.
type TreeState struct {
	// Domains is the displayed sibling set: the children of ActiveNodeID.
	Domains   []topic.Domain
	Distances topic.Distances

	// ActiveNodeID is the node whose children are shown. Nil means the root level.
	ActiveNodeID *string

	// ActiveDomain is the record for ActiveNodeID when it is known.
	ActiveDomain *topic.Domain

	// Path lists the ancestors of ActiveNodeID, root first, excluding the active node.
	Path []topic.Domain

	Status       Status
	ErrorCode    errors.ErrorCode
	ErrorMessage string
}

// ActiveChangeFunc observes changes of the active node. activeID is nil at the root level.
// It is called with the store locked, in the order the changes happen, and must not call
// back into the store. The returned work, if any, runs concurrently with the reload that
// follows the change.
type ActiveChangeFunc func(activeID *string) func(ctx context.Context)

// TreeStore owns the active node and the sibling set shown under it.
type TreeStore struct {
	gw     gateway.Gateway
	logger *zap.Logger

	mu        sync.Mutex
	state     TreeState
	seq       uint64 // newest issued load
	observers []ActiveChangeFunc
}

// NewTreeStore creates a tree store positioned at the root level. Nothing is fetched
// until the first Load or Navigate.
func NewTreeStore(gw gateway.Gateway, logger *zap.Logger) *TreeStore {
	return &TreeStore{
		gw:     gw,
		logger: logging.OrNop(logger).Named("tree"),
		state: TreeState{
			Domains:   []topic.Domain{},
			Distances: topic.Distances{},
			Path:      []topic.Domain{},
			Status:    StatusIdle,
		},
	}
}

// OnActiveChange registers fn to run whenever Navigate changes the active node.
// Navigate waits for the work fn returns as well as for its own reload.
func (s *TreeStore) OnActiveChange(fn ActiveChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns an independent snapshot of the store.
func (s *TreeStore) State() TreeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Domains = topic.CloneDomains(s.state.Domains)
	st.Distances = s.state.Distances.Clone()
	st.Path = topic.CloneDomains(s.state.Path)
	st.ActiveNodeID = topic.CloneID(s.state.ActiveNodeID)
	if s.state.ActiveDomain != nil {
		d := *s.state.ActiveDomain
		d.ParentID = topic.CloneID(d.ParentID)
		st.ActiveDomain = &d
	}
	return st
}

// Load fetches the children of parentID and, for a non-root parent, its ancestor path.
// The result replaces Domains, Distances and Path only if no newer load was issued
// meanwhile and parentID is still the active node; otherwise it is discarded and Load
// returns nil. On failure the previous data is kept and the returned error carries
// FETCH_FAILED or PATH_FETCH_FAILED.
func (s *TreeStore) Load(ctx context.Context, parentID *string) error {
	s.mu.Lock()
	seq := s.beginLoadLocked()
	resolve := s.needsActiveDomainLocked(parentID)
	s.mu.Unlock()

	return s.runLoad(ctx, seq, topic.CloneID(parentID), resolve)
}

// WithActive calls fn with the active node while the store is locked, so that nothing
// fn starts can be overtaken by a concurrent Navigate. fn must not call back into the store.
func (s *TreeStore) WithActive(fn func(activeID *string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(topic.CloneID(s.state.ActiveNodeID))
}

// Reload loads the current level again.
func (s *TreeStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	seq := s.beginLoadLocked()
	active := topic.CloneID(s.state.ActiveNodeID)
	resolve := s.needsActiveDomainLocked(active)
	s.mu.Unlock()

	return s.runLoad(ctx, seq, active, resolve)
}

// Navigate makes id the active node (nil for the root level) and loads its children.
// Observers are notified only when the active node actually changes.
func (s *TreeStore) Navigate(ctx context.Context, id *string) error {
	id = topic.CloneID(id)

	s.mu.Lock()
	changed := !topic.SameID(id, s.state.ActiveNodeID)
	if changed {
		s.state.ActiveNodeID = topic.CloneID(id)
		s.state.ActiveDomain = s.resolveLocked(id)
	}
	seq := s.beginLoadLocked()
	resolve := s.needsActiveDomainLocked(id)
	var work []func(context.Context)
	if changed {
		for _, fn := range s.observers {
			if run := fn(topic.CloneID(id)); run != nil {
				work = append(work, run)
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.logger.Debug("active node changed", zap.Stringp("active", id))
	}

	var wg sync.WaitGroup
	for _, run := range work {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
	err := s.runLoad(ctx, seq, id, resolve)
	wg.Wait()
	return err
}

// AddDomain creates a child of the active node and then reloads the current level.
// There is no optimistic insert: the new domain appears once the reload lands.
// On failure Domains are untouched and the error carries CREATE_FAILED.
func (s *TreeStore) AddDomain(ctx context.Context, name, description string) (*topic.Domain, error) {
	s.mu.Lock()
	parent := topic.CloneID(s.state.ActiveNodeID)
	s.mu.Unlock()

	created, err := s.gw.CreateDomain(ctx, gateway.CreateDomainInput{
		Name:        name,
		ParentID:    parent,
		Description: description,
	})
	if err != nil {
		return nil, s.mutationFailed(errors.ErrCreateFailed, err, zap.Stringp("parent", parent))
	}

	s.logger.Info("domain created", zap.String("id", created.ID), zap.Stringp("parent", parent))
	return created, s.Reload(ctx)
}

// UpdateDomain edits a domain and then reloads the current level.
// On failure the error carries UPDATE_FAILED.
func (s *TreeStore) UpdateDomain(ctx context.Context, id string, in gateway.UpdateDomainInput) (*topic.Domain, error) {
	updated, err := s.gw.UpdateDomain(ctx, id, in)
	if err != nil {
		return nil, s.mutationFailed(errors.ErrUpdateFailed, err, zap.String("id", id))
	}

	s.mu.Lock()
	if s.state.ActiveNodeID != nil && *s.state.ActiveNodeID == id {
		d := *updated
		d.ParentID = topic.CloneID(updated.ParentID)
		s.state.ActiveDomain = &d
	}
	s.mu.Unlock()

	return updated, s.Reload(ctx)
}

// DeleteDomain deletes a domain and its subtree. When the deleted node is the active
// node or one of its ancestors the store returns to the root level. Any other delete
// reloads the current level, not the root: the active node stays where the user put
// it and the deleted sibling simply drops out of Domains. On failure Domains are
// untouched and the error carries DELETE_FAILED.
func (s *TreeStore) DeleteDomain(ctx context.Context, id string) error {
	if err := s.gw.DeleteDomain(ctx, id); err != nil {
		return s.mutationFailed(errors.ErrDeleteFailed, err, zap.String("id", id))
	}
	s.logger.Info("domain deleted", zap.String("id", id))

	s.mu.Lock()
	reset := s.containsActiveLocked(id)
	s.mu.Unlock()

	if reset {
		return s.Navigate(ctx, nil)
	}
	return s.Reload(ctx)
}

// containsActiveLocked reports whether id is the active node or one of its ancestors.
func (s *TreeStore) containsActiveLocked(id string) bool {
	if s.state.ActiveNodeID == nil {
		return false
	}
	if *s.state.ActiveNodeID == id {
		return true
	}
	for _, d := range s.state.Path {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (s *TreeStore) beginLoadLocked() uint64 {
	s.seq++
	s.state.Status = StatusLoading
	s.state.ErrorCode = ""
	s.state.ErrorMessage = ""
	return s.seq
}

// resolveLocked finds the record for id among what is currently displayed.
func (s *TreeStore) resolveLocked(id *string) *topic.Domain {
	if id == nil {
		return nil
	}
	if d, ok := topic.FindDomain(*id, s.state.Domains, s.state.Path); ok {
		return d
	}
	return nil
}

func (s *TreeStore) needsActiveDomainLocked(parentID *string) bool {
	return parentID != nil && topic.SameID(parentID, s.state.ActiveNodeID) && s.state.ActiveDomain == nil
}

func (s *TreeStore) mutationFailed(code errors.ErrorCode, cause error, fields ...zap.Field) error {
	navErr := failure(s.logger, code, cause, fields...)
	s.mu.Lock()
	s.state.ErrorCode = navErr.Code
	s.state.ErrorMessage = navErr.Message
	s.mu.Unlock()
	return navErr
}

// runLoad performs the fetches for load seq and applies the outcome.
func (s *TreeStore) runLoad(ctx context.Context, seq uint64, parentID *string, resolveActive bool) error {
	var (
		listing *gateway.Listing
		path    []topic.Domain
		active  *topic.Domain
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := s.gw.ListDomains(gctx, parentID)
		if err != nil {
			return errors.NewStoreFailure(errors.ErrFetchFailed, err)
		}
		listing = l
		return nil
	})
	if parentID != nil {
		g.Go(func() error {
			p, err := s.gw.GetPath(gctx, *parentID)
			if err != nil {
				return errors.NewStoreFailure(errors.ErrPathFetchFailed, err)
			}
			path = p
			return nil
		})
	}
	if resolveActive {
		// Best effort: the breadcrumb tolerates an unknown active name.
		g.Go(func() error {
			d, err := s.gw.GetDomain(gctx, *parentID)
			if err != nil {
				s.logger.Debug("active domain lookup failed", zap.String("id", *parentID), zap.Error(err))
				return nil
			}
			active = d
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		s.logger.Debug("discarding superseded load", zap.Uint64("seq", seq), zap.Uint64("newest", s.seq))
		return nil
	}
	if !topic.SameID(parentID, s.state.ActiveNodeID) {
		s.logger.Debug("discarding load for inactive parent", zap.Stringp("parent", parentID))
		s.state.Status = StatusIdle
		return nil
	}

	if err != nil {
		var navErr *errors.NavError
		if !stderrors.As(err, &navErr) {
			navErr = errors.NewStoreFailure(errors.ErrFetchFailed, err)
		}
		s.logger.Warn("load failed",
			zap.Stringp("parent", parentID),
			zap.String("code", string(navErr.Code)),
			zap.Error(navErr.Cause))
		s.state.Status = StatusError
		s.state.ErrorCode = navErr.Code
		s.state.ErrorMessage = navErr.Message
		return navErr
	}

	s.state.Domains = topic.CloneDomains(listing.Domains)
	s.state.Distances = listing.Distances.Restrict(listing.Domains)
	s.state.Path = topic.CloneDomains(path)
	if active != nil && s.state.ActiveDomain == nil {
		s.state.ActiveDomain = active
	}
	s.state.Status = StatusIdle
	return nil
}
