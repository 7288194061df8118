// Package gatewaytest provides an in-memory gateway.Gateway for tests. Responses can be
// failed on demand or held at a gate so tests control the order in which results arrive.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/gateway"
	"github.com/hpungsan/topicnav/internal/topic"
)

// Gate holds one gateway call until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *Gate {
	return &Gate{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

// Entered is closed once the held call has computed its result and is waiting.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets the held call return. Safe to call more than once.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

type gateKey struct {
	op  string
	key string
}

// Fake is an in-memory Gateway. The zero value is not usable; call NewFake.
type Fake struct {
	mu        sync.Mutex
	domains   map[string]topic.Domain
	order     []string
	distances topic.Distances
	posts     map[string][]topic.Post
	failures  map[string]error
	gates     map[gateKey]*Gate
	calls     map[string][]string

	// Summarizer produces summaries. Defaults to listing the post ids it was given.
	Summarizer func(domainID string, posts []topic.Post) string
}

var _ gateway.Gateway = (*Fake)(nil)

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{
		domains:   make(map[string]topic.Domain),
		distances: make(topic.Distances),
		posts:     make(map[string][]topic.Post),
		failures:  make(map[string]error),
		gates:     make(map[gateKey]*Gate),
		calls:     make(map[string][]string),
	}
}

// Seed inserts a domain directly, bypassing call recording. parentID "" seeds a root.
func (f *Fake) Seed(id, name, description, parentID string) topic.Domain {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := topic.Domain{ID: id, Name: name, Description: description, ParentID: topic.IDPtr(parentID)}
	if _, ok := f.domains[id]; !ok {
		f.order = append(f.order, id)
	}
	f.domains[id] = d
	return d
}

// SetDistance records the distance between two domains.
func (f *Fake) SetDistance(a, b string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distances.Set(a, b, v)
}

// SetPosts sets the posts returned for a domain.
func (f *Fake) SetPosts(domainID string, posts []topic.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[domainID] = topic.ClonePosts(posts)
}

// Fail makes every call of op fail with err until Recover is called.
// A nil err uses a generic server failure.
func (f *Fake) Fail(op string, err error) {
	if err == nil {
		err = errors.NewNetworkOrServer(op, http.StatusInternalServerError, fmt.Errorf("injected failure"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Recover clears a failure set by Fail.
func (f *Fake) Recover(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, op)
}

// Hold arranges for the next call of op with the given key to block until the
// returned gate is released. The key is the parent id for ListDomains ("" for the
// root level) and the domain id for every other operation.
func (f *Fake) Hold(op, key string) *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := newGate()
	f.gates[gateKey{op: op, key: key}] = g
	return g
}

// Calls returns the keys of every call made for op, in order.
func (f *Fake) Calls(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[op]...)
}

// Domain returns a stored domain.
func (f *Fake) Domain(id string) (topic.Domain, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.domains[id]
	return d, ok
}

// begin records the call and returns the gate to wait on and the failure to report, if any.
func (f *Fake) begin(op, key string) (*Gate, error) {
	f.calls[op] = append(f.calls[op], key)
	gk := gateKey{op: op, key: key}
	g := f.gates[gk]
	delete(f.gates, gk)
	return g, f.failures[op]
}

// wait blocks on g if non-nil. Called without f.mu held.
func wait(ctx context.Context, g *Gate) error {
	if g == nil {
		return nil
	}
	close(g.entered)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notFound(op, id string) error {
	return errors.NewNetworkOrServer(op, http.StatusNotFound, fmt.Errorf("domain not found: %s", id))
}

// ListDomains implements gateway.Gateway.
func (f *Fake) ListDomains(ctx context.Context, parentID *string) (*gateway.Listing, error) {
	key := ""
	if parentID != nil {
		key = *parentID
	}

	f.mu.Lock()
	g, failure := f.begin(gateway.OpListDomains, key)
	var listing *gateway.Listing
	if failure == nil {
		if _, ok := f.domains[key]; key != "" && !ok {
			failure = notFound(gateway.OpListDomains, key)
		} else {
			children := f.childrenLocked(parentID)
			listing = &gateway.Listing{
				Domains:   children,
				Distances: f.distances.Restrict(children),
			}
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return listing, nil
}

func (f *Fake) childrenLocked(parentID *string) []topic.Domain {
	out := []topic.Domain{}
	for _, id := range f.order {
		d := f.domains[id]
		if topic.SameID(d.ParentID, parentID) {
			out = append(out, d)
		}
	}
	return topic.CloneDomains(out)
}

// GetPath implements gateway.Gateway.
func (f *Fake) GetPath(ctx context.Context, id string) ([]topic.Domain, error) {
	f.mu.Lock()
	g, failure := f.begin(gateway.OpGetPath, id)
	var path []topic.Domain
	if failure == nil {
		d, ok := f.domains[id]
		if !ok {
			failure = notFound(gateway.OpGetPath, id)
		} else {
			for p := d.ParentID; p != nil; {
				parent, ok := f.domains[*p]
				if !ok {
					break
				}
				path = append([]topic.Domain{parent}, path...)
				p = parent.ParentID
			}
			path = topic.CloneDomains(path)
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return path, nil
}

// GetDomain implements gateway.Gateway.
func (f *Fake) GetDomain(ctx context.Context, id string) (*topic.Domain, error) {
	f.mu.Lock()
	g, failure := f.begin(gateway.OpGetDomain, id)
	var found *topic.Domain
	if failure == nil {
		var ok bool
		if found, ok = topic.FindDomain(id, f.allLocked()); !ok {
			failure = notFound(gateway.OpGetDomain, id)
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return found, nil
}

func (f *Fake) allLocked() []topic.Domain {
	out := make([]topic.Domain, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.domains[id])
	}
	return out
}

// CreateDomain implements gateway.Gateway. The id is derived from the name.
func (f *Fake) CreateDomain(ctx context.Context, in gateway.CreateDomainInput) (*topic.Domain, error) {
	key := ""
	if in.ParentID != nil {
		key = *in.ParentID
	}

	f.mu.Lock()
	g, failure := f.begin(gateway.OpCreateDomain, key)
	var created topic.Domain
	if failure == nil {
		if _, ok := f.domains[key]; key != "" && !ok {
			failure = notFound(gateway.OpCreateDomain, key)
		} else {
			created = topic.Domain{
				ID:          f.newIDLocked(in.Name),
				Name:        in.Name,
				Description: in.Description,
				ParentID:    topic.CloneID(in.ParentID),
			}
			f.domains[created.ID] = created
			f.order = append(f.order, created.ID)
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return &created, nil
}

func (f *Fake) newIDLocked(name string) string {
	base := strings.ReplaceAll(topic.Normalize(name), " ", "-")
	if base == "" {
		base = "topic"
	}
	id := base
	for n := 2; ; n++ {
		if _, taken := f.domains[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// UpdateDomain implements gateway.Gateway.
func (f *Fake) UpdateDomain(ctx context.Context, id string, in gateway.UpdateDomainInput) (*topic.Domain, error) {
	f.mu.Lock()
	g, failure := f.begin(gateway.OpUpdateDomain, id)
	var updated topic.Domain
	if failure == nil {
		d, ok := f.domains[id]
		if !ok {
			failure = notFound(gateway.OpUpdateDomain, id)
		} else {
			if in.Name != nil {
				d.Name = *in.Name
			}
			if in.Description != nil {
				d.Description = *in.Description
			}
			f.domains[id] = d
			updated = d
			updated.ParentID = topic.CloneID(d.ParentID)
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return &updated, nil
}

// DeleteDomain implements gateway.Gateway. The whole subtree is removed.
func (f *Fake) DeleteDomain(ctx context.Context, id string) error {
	f.mu.Lock()
	g, failure := f.begin(gateway.OpDeleteDomain, id)
	if failure == nil {
		if _, ok := f.domains[id]; !ok {
			failure = notFound(gateway.OpDeleteDomain, id)
		} else {
			f.deleteSubtreeLocked(id)
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return err
	}
	return failure
}

func (f *Fake) deleteSubtreeLocked(id string) {
	for _, child := range f.childrenLocked(&id) {
		f.deleteSubtreeLocked(child.ID)
	}
	delete(f.domains, id)
	delete(f.posts, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	for pair := range f.distances {
		if pair.A == id || pair.B == id {
			delete(f.distances, pair)
		}
	}
}

// ListPosts implements gateway.Gateway.
func (f *Fake) ListPosts(ctx context.Context, domainID string) ([]topic.Post, error) {
	f.mu.Lock()
	g, failure := f.begin(gateway.OpListPosts, domainID)
	var posts []topic.Post
	if failure == nil {
		if _, ok := f.domains[domainID]; !ok {
			failure = notFound(gateway.OpListPosts, domainID)
		} else {
			posts = topic.ClonePosts(f.posts[domainID])
		}
	}
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return posts, nil
}

// Summarize implements gateway.Gateway.
func (f *Fake) Summarize(ctx context.Context, domainID string, posts []topic.Post) (string, error) {
	input := topic.ClonePosts(posts)

	f.mu.Lock()
	g, failure := f.begin(gateway.OpSummarize, domainID)
	summarizer := f.Summarizer
	f.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return "", err
	}
	if failure != nil {
		return "", failure
	}
	if summarizer != nil {
		return summarizer(domainID, input), nil
	}
	return DefaultSummary(domainID, input), nil
}

// DefaultSummary is the summary the fake produces without a Summarizer.
func DefaultSummary(domainID string, posts []topic.Post) string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return fmt.Sprintf("%s: %d posts [%s]", domainID, len(posts), strings.Join(ids, ","))
}
