// Package store holds the three state containers of the navigator: the domain tree,
// the posts of the active domain and the on-demand summary. Stores are safe for
// concurrent use; gateway calls run outside their locks and each completion is
// applied under a single lock acquisition.
package store

import (
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/errors"
)

// Status is the request status of a store.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// failure wraps a gateway error in a store-level code and logs the transport detail.
// The returned error carries only the fixed user-facing message in Message.
func failure(logger *zap.Logger, code errors.ErrorCode, cause error, fields ...zap.Field) *errors.NavError {
	logger.Warn("request failed", append(fields, zap.String("code", string(code)), zap.Error(cause))...)
	return errors.NewStoreFailure(code, cause)
}
