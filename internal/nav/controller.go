// Package nav is the navigation controller: it wires user actions to the tree, posts
// and summary stores and derives the renderable View from their combined state.
package nav

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/gateway"
	"github.com/hpungsan/topicnav/internal/logging"
	"github.com/hpungsan/topicnav/internal/store"
	"github.com/hpungsan/topicnav/internal/topic"
)

// MaxNameLength bounds domain names accepted by the controller.
const MaxNameLength = 200

// Controller is the composition root of the navigator.
type Controller struct {
	tree    *store.TreeStore
	posts   *store.PostsStore
	summary *store.SummaryStore
	logger  *zap.Logger
}

// New wires the stores together. Posts follow the active node: they are loaded when
// a domain becomes active and cleared at the root level. Summaries are only produced
// by Summarize.
func New(tree *store.TreeStore, posts *store.PostsStore, summary *store.SummaryStore, logger *zap.Logger) *Controller {
	c := &Controller{
		tree:    tree,
		posts:   posts,
		summary: summary,
		logger:  logging.OrNop(logger).Named("nav"),
	}
	tree.OnActiveChange(c.onActiveChange)
	return c
}

// NewWithGateway builds the three stores over gw and wires them.
func NewWithGateway(gw gateway.Gateway, logger *zap.Logger) *Controller {
	return New(
		store.NewTreeStore(gw, logger),
		store.NewPostsStore(gw, logger),
		store.NewSummaryStore(gw, logger),
		logger,
	)
}

// onActiveChange runs with the tree locked, so posts tickets are claimed in the same
// order as the active node changes and the newest ticket always names the active node.
func (c *Controller) onActiveChange(id *string) func(context.Context) {
	if id == nil {
		c.posts.Clear()
		return nil
	}
	ticket := c.posts.Begin(*id)
	return func(ctx context.Context) { c.fetchPosts(ctx, ticket, *id) }
}

func (c *Controller) fetchPosts(ctx context.Context, ticket store.PostsTicket, id string) error {
	// The failure is recorded in the posts store and shown from there.
	err := c.posts.Fetch(ctx, ticket)
	if err != nil {
		c.logger.Debug("posts load failed", zap.String("domain", id), zap.Error(err))
	}
	return err
}

// Start loads the root level.
func (c *Controller) Start(ctx context.Context) error {
	return c.tree.Reload(ctx)
}

// Navigate makes id the active domain. An empty id returns to the root level.
func (c *Controller) Navigate(ctx context.Context, id string) error {
	return c.tree.Navigate(ctx, topic.IDPtr(id))
}

// Up navigates to the parent of the active domain.
func (c *Controller) Up(ctx context.Context) error {
	st := c.tree.State()
	if st.ActiveNodeID == nil {
		return nil
	}
	parent := ""
	if n := len(st.Path); n > 0 {
		parent = st.Path[n-1].ID
	} else if st.ActiveDomain != nil && st.ActiveDomain.ParentID != nil {
		parent = *st.ActiveDomain.ParentID
	}
	return c.Navigate(ctx, parent)
}

// Reload refreshes the current level and, when a domain is active, its posts.
func (c *Controller) Reload(ctx context.Context) error {
	var active *string
	var ticket store.PostsTicket
	c.tree.WithActive(func(id *string) {
		if active = id; id != nil {
			ticket = c.posts.Begin(*id)
		}
	})

	var g errgroup.Group
	g.Go(func() error { return c.tree.Reload(ctx) })
	if active != nil {
		g.Go(func() error { return c.fetchPosts(ctx, ticket, *active) })
	}
	return g.Wait()
}

// AddDomain creates a child of the active domain (a root domain at the root level).
func (c *Controller) AddDomain(ctx context.Context, name, description string) (*topic.Domain, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	return c.tree.AddDomain(ctx, name, strings.TrimSpace(description))
}

// UpdateDomain edits a domain's name or description. Nil fields are left unchanged.
func (c *Controller) UpdateDomain(ctx context.Context, id string, name, description *string) (*topic.Domain, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	in := gateway.UpdateDomainInput{}
	if name != nil {
		n, err := validateName(*name)
		if err != nil {
			return nil, err
		}
		in.Name = &n
	}
	if description != nil {
		d := strings.TrimSpace(*description)
		in.Description = &d
	}
	if in.Name == nil && in.Description == nil {
		return nil, errors.NewInvalidRequest("nothing to update: name or description is required")
	}
	return c.tree.UpdateDomain(ctx, id, in)
}

// DeleteDomain deletes a domain and its subtree.
func (c *Controller) DeleteDomain(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewInvalidRequest("id is required")
	}
	return c.tree.DeleteDomain(ctx, id)
}

// Summarize summarizes the posts currently shown for the active domain. It is refused
// while the posts on hand belong to another domain, e.g. after a failed posts load.
func (c *Controller) Summarize(ctx context.Context) (string, error) {
	active := c.tree.State().ActiveNodeID
	if active == nil {
		return "", errors.NewInvalidRequest("select a news topic before summarizing")
	}
	posts := c.posts.State()
	if !topic.SameID(posts.DomainID, active) {
		return "", errors.NewInvalidRequest("the posts of this news topic are not loaded")
	}
	if len(posts.Posts) == 0 {
		return "", errors.NewInvalidRequest("no posts to summarize")
	}
	return c.summary.Summarize(ctx, *active, posts.Posts)
}

// View returns the current renderable state.
func (c *Controller) View() View {
	return Project(c.tree.State(), c.posts.State(), c.summary.State())
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.NewInvalidRequest("name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", errors.NewInvalidRequest("name is too long")
	}
	return name, nil
}
