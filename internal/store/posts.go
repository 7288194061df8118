package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/gateway"
	"github.com/hpungsan/topicnav/internal/logging"
	"github.com/hpungsan/topicnav/internal/topic"
)

// PostsState is a snapshot of the posts store.
type PostsState struct {
	// Posts belong to DomainID. Empty at the root level.
	Posts    []topic.Post
	DomainID *string

	Status       Status
	ErrorCode    errors.ErrorCode
	ErrorMessage string
}

// PostsStore holds the posts of the active domain.
type PostsStore struct {
	gw     gateway.Gateway
	logger *zap.Logger

	mu    sync.Mutex
	state PostsState
	seq   uint64
}

// NewPostsStore creates an empty posts store.
func NewPostsStore(gw gateway.Gateway, logger *zap.Logger) *PostsStore {
	return &PostsStore{
		gw:     gw,
		logger: logging.OrNop(logger).Named("posts"),
		state: PostsState{
			Posts:  []topic.Post{},
			Status: StatusIdle,
		},
	}
}

// State returns an independent snapshot of the store.
func (s *PostsStore) State() PostsState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Posts = topic.ClonePosts(s.state.Posts)
	st.DomainID = topic.CloneID(s.state.DomainID)
	return st
}

// PostsTicket identifies one posts load. Only the newest ticket's result is applied.
type PostsTicket struct {
	seq      uint64
	domainID string
}

// Begin claims a ticket for loading domainID and marks the store Loading. Tickets are
// ordered by when Begin is called, not by when Fetch runs.
func (s *PostsStore) Begin(domainID string) PostsTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.state.Status = StatusLoading
	s.state.ErrorCode = ""
	s.state.ErrorMessage = ""
	return PostsTicket{seq: s.seq, domainID: domainID}
}

// Fetch runs the load claimed by t and replaces the current posts wholesale. A result
// whose ticket is no longer the newest is discarded and Fetch returns nil. On failure
// the previous posts are kept and the error carries POSTS_FETCH_FAILED.
func (s *PostsStore) Fetch(ctx context.Context, t PostsTicket) error {
	posts, err := s.gw.ListPosts(ctx, t.domainID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.seq != s.seq {
		s.logger.Debug("discarding superseded posts", zap.String("domain", t.domainID))
		return nil
	}
	if err != nil {
		navErr := failure(s.logger, errors.ErrPostsFetchFailed, err, zap.String("domain", t.domainID))
		s.state.Status = StatusError
		s.state.ErrorCode = navErr.Code
		s.state.ErrorMessage = navErr.Message
		return navErr
	}

	s.state.Posts = topic.ClonePosts(posts)
	s.state.DomainID = topic.IDPtr(t.domainID)
	s.state.Status = StatusIdle
	return nil
}

// Load fetches the posts of domainID. It is Begin followed by Fetch.
func (s *PostsStore) Load(ctx context.Context, domainID string) error {
	return s.Fetch(ctx, s.Begin(domainID))
}

// Clear empties the store and discards any load still in flight.
func (s *PostsStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.state = PostsState{
		Posts:  []topic.Post{},
		Status: StatusIdle,
	}
}
