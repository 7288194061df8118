package nav

import (
	"github.com/hpungsan/topicnav/internal/store"
	"github.com/hpungsan/topicnav/internal/topic"
)

// RootCrumbName labels the breadcrumb entry for the root level.
const RootCrumbName = "All topics"

// Crumb is one breadcrumb entry. The root crumb has an empty ID.
type Crumb struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// View is everything a renderer needs, derived from the three stores. It holds
// no references into store state.
type View struct {
	ActiveID       *string `json:"activeId"`
	ActiveName     string  `json:"activeName,omitempty"`
	Breadcrumb     []Crumb `json:"breadcrumb"`
	ShowBreadcrumb bool    `json:"showBreadcrumb"`

	Domains     []topic.Domain  `json:"domains"`
	Distances   topic.Distances `json:"distances"`
	MaxDistance float64         `json:"maxDistance"`
	Empty       bool            `json:"empty"`

	TreeStatus store.Status `json:"treeStatus"`
	TreeError  string       `json:"treeError,omitempty"`

	Posts       []topic.Post `json:"posts"`
	ShowPosts   bool         `json:"showPosts"`
	PostsStatus store.Status `json:"postsStatus"`
	PostsError  string       `json:"postsError,omitempty"`

	Summary         *string      `json:"summary"`
	SummaryDomainID *string      `json:"summaryDomainId,omitempty"`
	SummaryStatus   store.Status `json:"summaryStatus"`
	SummaryError    string       `json:"summaryError,omitempty"`
	CanSummarize    bool         `json:"canSummarize"`
}

// Project derives a View from store snapshots. It is a pure function.
func Project(tree store.TreeState, posts store.PostsState, summary store.SummaryState) View {
	v := View{
		ActiveID:       topic.CloneID(tree.ActiveNodeID),
		ShowBreadcrumb: tree.ActiveNodeID != nil,
		Domains:        topic.CloneDomains(tree.Domains),
		Distances:      tree.Distances.Clone(),
		MaxDistance:    tree.Distances.Max(),
		TreeStatus:     tree.Status,
		TreeError:      tree.ErrorMessage,
		ShowPosts:      tree.ActiveNodeID != nil,
		PostsStatus:    posts.Status,
		PostsError:     posts.ErrorMessage,
		SummaryStatus:  summary.Status,
		SummaryError:   summary.ErrorMessage,
	}
	v.Empty = len(v.Domains) == 0 && tree.Status == store.StatusIdle

	if tree.ActiveDomain != nil {
		v.ActiveName = tree.ActiveDomain.Name
	}
	v.Breadcrumb = breadcrumb(tree)

	if v.ShowPosts {
		v.Posts = topic.ClonePosts(posts.Posts)
	} else {
		v.Posts = []topic.Post{}
	}

	if summary.Summary != nil {
		s := *summary.Summary
		v.Summary = &s
		v.SummaryDomainID = topic.CloneID(summary.DomainID)
	}
	v.CanSummarize = v.ShowPosts && len(v.Posts) > 0 &&
		topic.SameID(posts.DomainID, tree.ActiveNodeID) && summary.Status != store.StatusLoading

	return v
}

// breadcrumb is the root crumb, then the ancestors, then the active node when its
// record is known.
func breadcrumb(tree store.TreeState) []Crumb {
	crumbs := make([]Crumb, 0, len(tree.Path)+2)
	crumbs = append(crumbs, Crumb{Name: RootCrumbName, Current: tree.ActiveNodeID == nil})
	for _, d := range tree.Path {
		crumbs = append(crumbs, Crumb{ID: d.ID, Name: d.Name})
	}
	if tree.ActiveNodeID != nil && tree.ActiveDomain != nil {
		crumbs = append(crumbs, Crumb{ID: tree.ActiveDomain.ID, Name: tree.ActiveDomain.Name, Current: true})
	}
	return crumbs
}
