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

// SummaryState is a snapshot of the summary store.
type SummaryState struct {
	// Summary is nil until the first successful summarization. It is never cleared
	// by navigation.
	Summary  *string
	DomainID *string

	Status       Status
	ErrorCode    errors.ErrorCode
	ErrorMessage string
}

// SummaryStore holds the summary produced on demand.
type SummaryStore struct {
	gw     gateway.Gateway
	logger *zap.Logger

	mu    sync.Mutex
	state SummaryState
}

// NewSummaryStore creates an empty summary store.
func NewSummaryStore(gw gateway.Gateway, logger *zap.Logger) *SummaryStore {
	return &SummaryStore{
		gw:     gw,
		logger: logging.OrNop(logger).Named("summary"),
		state:  SummaryState{Status: StatusIdle},
	}
}

// State returns an independent snapshot of the store.
func (s *SummaryStore) State() SummaryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if s.state.Summary != nil {
		v := *s.state.Summary
		st.Summary = &v
	}
	st.DomainID = topic.CloneID(s.state.DomainID)
	return st
}

// Summarize requests a summary of posts on behalf of domainID. posts is copied
// before the call, so later changes by the caller do not affect the request.
// Only one summarization runs at a time: a call made while another is in flight
// is refused with INVALID_REQUEST and leaves the store as it was.
// On failure the previous summary is kept and the error carries SUMMARIZE_FAILED.
func (s *SummaryStore) Summarize(ctx context.Context, domainID string, posts []topic.Post) (string, error) {
	input := topic.ClonePosts(posts)

	s.mu.Lock()
	if s.state.Status == StatusLoading {
		s.mu.Unlock()
		return "", errors.NewInvalidRequest("a summary is already being generated")
	}
	s.state.Status = StatusLoading
	s.state.ErrorCode = ""
	s.state.ErrorMessage = ""
	s.mu.Unlock()

	summary, err := s.gw.Summarize(ctx, domainID, input)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		navErr := failure(s.logger, errors.ErrSummarizeFailed, err, zap.String("domain", domainID))
		s.state.Status = StatusError
		s.state.ErrorCode = navErr.Code
		s.state.ErrorMessage = navErr.Message
		return "", navErr
	}

	s.state.Summary = &summary
	s.state.DomainID = topic.IDPtr(domainID)
	s.state.Status = StatusIdle
	s.logger.Debug("summary updated", zap.String("domain", domainID), zap.Int("posts", len(input)))
	return summary, nil
}
