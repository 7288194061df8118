// Package gateway is the remote request interface the navigation core talks to.
// Each method issues exactly one logical request and returns its result or a failure.
// Implementations never retry and never cache.
package gateway

import (
	"context"

	"github.com/hpungsan/topicnav/internal/topic"
)

// Operation names, used for metrics, logging and error details.
const (
	OpListDomains  = "list_domains"
	OpGetPath      = "get_path"
	OpGetDomain    = "get_domain"
	OpCreateDomain = "create_domain"
	OpUpdateDomain = "update_domain"
	OpDeleteDomain = "delete_domain"
	OpListPosts    = "list_posts"
	OpSummarize    = "summarize"
)

// Listing is the sibling set under one parent together with their pairwise distances.
type Listing struct {
	Domains   []topic.Domain  `json:"domains"`
	Distances topic.Distances `json:"distances"`
}

// CreateDomainInput describes a new domain. A nil ParentID creates a root domain.
type CreateDomainInput struct {
	Name        string  `json:"name"`
	ParentID    *string `json:"parentId"`
	Description string  `json:"description"`
}

// UpdateDomainInput changes a domain's fields. Nil fields are left unchanged.
type UpdateDomainInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Gateway is the abstract transport used by the stores.
type Gateway interface {
	// ListDomains returns the children of parentID, or the roots when parentID is nil.
	ListDomains(ctx context.Context, parentID *string) (*Listing, error)

	// GetPath returns the ancestors of id ordered root first, excluding id itself.
	GetPath(ctx context.Context, id string) ([]topic.Domain, error)

	// GetDomain returns a single domain.
	GetDomain(ctx context.Context, id string) (*topic.Domain, error)

	CreateDomain(ctx context.Context, in CreateDomainInput) (*topic.Domain, error)
	UpdateDomain(ctx context.Context, id string, in UpdateDomainInput) (*topic.Domain, error)

	// DeleteDomain removes id and its whole subtree.
	DeleteDomain(ctx context.Context, id string) error

	// ListPosts returns the posts associated with a domain.
	ListPosts(ctx context.Context, domainID string) ([]topic.Post, error)

	// Summarize asks the backend to summarize posts on behalf of a domain.
	Summarize(ctx context.Context, domainID string, posts []topic.Post) (string, error)
}
