// Package topic defines the news-topic data model shared by the gateway, the stores
// and every renderer.
package topic

// Domain is a node in the news-topic hierarchy. Domains form a forest; a domain
// with a nil ParentID is a root.
type Domain struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parentId"`
}

// IsRoot reports whether the domain sits at the top level.
func (d Domain) IsRoot() bool {
	return d.ParentID == nil
}

// Author identifies who wrote a post.
type Author struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Post is a social post associated with one domain.
type Post struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Author    *Author `json:"author,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// SameID reports whether two optional domain ids refer to the same node.
// Two nil ids both mean "root level".
func SameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CloneID returns an independent copy of an optional id.
func CloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// IDPtr returns a pointer to id, or nil for the empty string (root level).
func IDPtr(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// FindDomain returns a copy of the domain with the given id, searching each list in order.
func FindDomain(id string, lists ...[]Domain) (*Domain, bool) {
	for _, list := range lists {
		for _, d := range list {
			if d.ID == id {
				found := d
				found.ParentID = CloneID(d.ParentID)
				return &found, true
			}
		}
	}
	return nil, false
}

// CloneDomains copies a domain slice, never returning nil.
func CloneDomains(in []Domain) []Domain {
	out := make([]Domain, len(in))
	for i, d := range in {
		d.ParentID = CloneID(d.ParentID)
		out[i] = d
	}
	return out
}

// ClonePosts copies a post slice, never returning nil.
func ClonePosts(in []Post) []Post {
	out := make([]Post, len(in))
	for i, p := range in {
		if p.Author != nil {
			a := *p.Author
			p.Author = &a
		}
		out[i] = p
	}
	return out
}
