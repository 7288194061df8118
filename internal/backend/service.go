// Package backend is a development implementation of the news-topic REST API. It
// stores domains in SQLite and serves deterministic mock posts and summaries so the
// navigator can run end-to-end without the production service.
package backend

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/db"
	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/logging"
	"github.com/hpungsan/topicnav/internal/topic"
)

// Field limits enforced on writes.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 2000
)

// maxDistance is the dissimilarity of two domains that share no words.
const maxDistance = 10.0

// CreateInput contains parameters for CreateDomain.
type CreateInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	ParentID    *string `json:"parentId"`
	Description string  `json:"description" validate:"max=2000"`
}

// UpdateInput contains parameters for UpdateDomain. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// Listing is one level of the tree with the pairwise distances of its domains.
type Listing struct {
	Domains   []topic.Domain  `json:"domains"`
	Distances topic.Distances `json:"distances"`
}

// Summary is the result of summarizing a domain's posts.
type Summary struct {
	Summary    string `json:"summary"`
	DomainID   string `json:"domain_id"`
	DomainName string `json:"domain_name"`
}

// Service implements the API operations over a SQLite database.
type Service struct {
	db       *sql.DB
	logger   *zap.Logger
	validate *validator.Validate

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewService creates a service over an initialized database.
func NewService(database *sql.DB, logger *zap.Logger) *Service {
	return &Service{
		db:       database,
		logger:   logging.OrNop(logger).Named("backend"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		now:      time.Now,
	}
}

// ListDomains returns the children of parentID (roots when nil). Distances are only
// computed when the level holds more than one domain. An unknown parent yields an
// empty level.
func (s *Service) ListDomains(ctx context.Context, parentID *string) (*Listing, error) {
	records, err := db.ListChildren(s.db, parentID)
	if err != nil {
		return nil, err
	}

	out := &Listing{
		Domains:   make([]topic.Domain, len(records)),
		Distances: topic.Distances{},
	}
	for i, r := range records {
		out.Domains[i] = r.Domain
	}
	if len(out.Domains) > 1 {
		out.Distances = Distances(out.Domains)
	}
	return out, nil
}

// GetDomain returns one domain.
func (s *Service) GetDomain(ctx context.Context, id string) (*topic.Domain, error) {
	r, err := db.GetByID(s.db, id)
	if err != nil {
		return nil, err
	}
	return &r.Domain, nil
}

// Path returns the ancestors of id, root first, excluding id itself.
func (s *Service) Path(ctx context.Context, id string) ([]topic.Domain, error) {
	records, err := db.Ancestors(s.db, id)
	if err != nil {
		return nil, err
	}
	out := make([]topic.Domain, len(records))
	for i, r := range records {
		out[i] = r.Domain
	}
	return out, nil
}

// CreateDomain adds a domain under in.ParentID. Sibling names must be unique after
// normalization.
func (s *Service) CreateDomain(ctx context.Context, in CreateInput) (*topic.Domain, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.ParentID = cleanOptionalString(in.ParentID)
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}

	nameNorm := topic.Normalize(in.Name)
	if in.ParentID != nil {
		ok, err := db.Exists(s.db, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.NewNotFound(*in.ParentID)
		}
	}

	id, err := s.newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := s.now().Unix()
	r := &db.Record{
		Domain: topic.Domain{
			ID:          id,
			Name:        in.Name,
			Description: in.Description,
			ParentID:    in.ParentID,
		},
		NameNorm:  nameNorm,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Insert(s.db, r); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewNameAlreadyExists(deref(in.ParentID), in.Name)
		}
		return nil, err
	}

	s.logger.Info("domain created", zap.String("id", id), zap.Stringp("parent", in.ParentID))
	return &r.Domain, nil
}

// UpdateDomain renames or re-describes a domain. The parent never changes.
func (s *Service) UpdateDomain(ctx context.Context, id string, in UpdateInput) (*topic.Domain, error) {
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		in.Name = &n
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
	}
	if in.Name == nil && in.Description == nil {
		return nil, errors.NewInvalidRequest("name or description is required")
	}
	if in.Name != nil && *in.Name == "" {
		return nil, errors.NewInvalidRequest("name must not be empty")
	}
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}

	r, err := db.GetByID(s.db, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		r.Name = *in.Name
		r.NameNorm = topic.Normalize(*in.Name)
	}
	if in.Description != nil {
		r.Description = *in.Description
	}

	if err := db.UpdateByID(s.db, r); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewNameAlreadyExists(deref(r.ParentID), r.Name)
		}
		return nil, err
	}
	return &r.Domain, nil
}

// DeleteDomain removes a domain with its subtree and returns how many domains were
// removed.
func (s *Service) DeleteDomain(ctx context.Context, id string) (int64, error) {
	n, err := db.DeleteSubtree(s.db, id)
	if err != nil {
		return 0, err
	}
	s.logger.Info("domain deleted", zap.String("id", id), zap.Int64("removed", n))
	return n, nil
}

// Posts returns the mock posts for a domain.
func (s *Service) Posts(ctx context.Context, id string) ([]topic.Post, error) {
	r, err := db.GetByID(s.db, id)
	if err != nil {
		return nil, err
	}
	return MockPosts(r.Domain), nil
}

// Summarize produces the mock summary for a domain. posts must not be empty.
func (s *Service) Summarize(ctx context.Context, id string, posts []topic.Post) (*Summary, error) {
	if len(posts) == 0 {
		return nil, errors.NewInvalidRequest("No posts provided to summarize.")
	}
	r, err := db.GetByID(s.db, id)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Summary:    MockSummary(r.Name),
		DomainID:   r.ID,
		DomainName: r.Name,
	}, nil
}

// MockPosts returns the three fixed posts served for every domain.
func MockPosts(d topic.Domain) []topic.Post {
	return []topic.Post{
		{
			ID:        d.ID + "_1",
			Text:      fmt.Sprintf("This is a mock X post about %s. #news", d.Name),
			Author:    &topic.Author{Username: "mock_user1", Name: "Mock User"},
			CreatedAt: "2023-03-21T12:34:56Z",
		},
		{
			ID:        d.ID + "_2",
			Text:      fmt.Sprintf("Breaking news on %s! Check out this important update. #trending", d.Name),
			Author:    &topic.Author{Username: "news_account", Name: "News Update"},
			CreatedAt: "2023-03-21T10:22:33Z",
		},
		{
			ID:        d.ID + "_3",
			Text:      fmt.Sprintf("Interesting development in %s topic. What do you think? #discussion", d.Name),
			Author:    &topic.Author{Username: "tech_insider", Name: "Tech Insider"},
			CreatedAt: "2023-03-21T09:11:22Z",
		},
	}
}

// MockSummary returns the fixed summary text for a domain name.
func MockSummary(name string) string {
	return fmt.Sprintf("Summary of recent posts about %s: There have been several discussions about key "+
		"developments in this topic. Experts are noting significant trends and potential future "+
		"implications. Users are showing increased engagement with content related to %s.", name, name)
}

// Distances scores every pair of domains by word overlap of name and description:
// (1 - Jaccard) * 10, rounded to two decimals. Unrelated domains score 10.
func Distances(domains []topic.Domain) topic.Distances {
	tokens := make([]map[string]bool, len(domains))
	for i, d := range domains {
		tokens[i] = topic.Tokens(d.Name + " " + d.Description)
	}

	out := make(topic.Distances)
	for i := 0; i < len(domains); i++ {
		for j := i + 1; j < len(domains); j++ {
			out.Set(domains[i].ID, domains[j].ID, dissimilarity(tokens[i], tokens[j]))
		}
	}
	return out
}

func dissimilarity(a, b map[string]bool) float64 {
	var inter int
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return maxDistance
	}
	d := (1 - float64(inter)/float64(union)) * maxDistance
	return math.Round(d*100) / 100
}

// newID returns a new ULID. The monotonic entropy source is not safe for
// concurrent use.
func (s *Service) newID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return errors.NewInvalidRequest(field + " is required")
		case "max":
			return errors.NewInvalidRequest(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		}
		return errors.NewInvalidRequest(fmt.Sprintf("%s is invalid", field))
	}
	return errors.NewInvalidRequest(err.Error())
}

// cleanOptionalString returns nil for nil or whitespace-only values.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
