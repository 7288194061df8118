package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/topic"
)

// testClock orders records by insertion in tests.
var testClock = time.Now().Unix()

// newTestRecord creates a record with default values for testing.
func newTestRecord(id, name string, parentID *string) *Record {
	testClock++
	now := testClock
	return &Record{
		Domain: topic.Domain{
			ID:          id,
			Name:        name,
			Description: name + " news",
			ParentID:    parentID,
		},
		NameNorm:  topic.Normalize(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func stringPtr(s string) *string {
	return &s
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedTree inserts world, tech, tech/ai, tech/chips and tech/ai/llms.
func seedTree(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, r := range []*Record{
		newTestRecord("world", "World", nil),
		newTestRecord("tech", "Tech", nil),
		newTestRecord("ai", "AI", stringPtr("tech")),
		newTestRecord("chips", "Chips", stringPtr("tech")),
		newTestRecord("llms", "LLMs", stringPtr("ai")),
	} {
		if err := Insert(db, r); err != nil {
			t.Fatalf("Insert(%s) failed: %v", r.ID, err)
		}
	}
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(got []Record, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestInsertAndGetByID(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	r, err := GetByID(db, "ai")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if r.Name != "AI" || r.NameNorm != "ai" || r.Description != "AI news" {
		t.Errorf("record = %+v", r)
	}
	if r.ParentID == nil || *r.ParentID != "tech" {
		t.Errorf("ParentID = %v, want tech", r.ParentID)
	}

	root, err := GetByID(db, "world")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if root.ParentID != nil {
		t.Errorf("root ParentID = %v, want nil", *root.ParentID)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByID(db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want NOT_FOUND", err)
	}
}

func TestInsert_DuplicateSiblingName(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	tests := []struct {
		name    string
		record  *Record
		wantErr bool
	}{
		{"same root name", newTestRecord("world2", " WORLD ", nil), true},
		{"same child name", newTestRecord("ai2", "ai", stringPtr("tech")), true},
		{"same name other parent", newTestRecord("ai3", "AI", stringPtr("world")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Insert(db, tt.record)
			if tt.wantErr && err != ErrUniqueConstraint {
				t.Errorf("Insert() error = %v, want ErrUniqueConstraint", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Insert() error = %v", err)
			}
		})
	}
}

func TestInsert_MissingParent(t *testing.T) {
	db := openTestDB(t)

	err := Insert(db, newTestRecord("orphan", "Orphan", stringPtr("nope")))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Insert() error = %v, want NOT_FOUND", err)
	}
}

func TestListChildren(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	roots, err := ListChildren(db, nil)
	if err != nil {
		t.Fatalf("ListChildren(nil) failed: %v", err)
	}
	if !equalIDs(roots, "world", "tech") {
		t.Errorf("roots = %v", ids(roots))
	}

	children, err := ListChildren(db, stringPtr("tech"))
	if err != nil {
		t.Fatalf("ListChildren(tech) failed: %v", err)
	}
	if !equalIDs(children, "ai", "chips") {
		t.Errorf("children = %v", ids(children))
	}

	leaf, err := ListChildren(db, stringPtr("llms"))
	if err != nil {
		t.Fatalf("ListChildren(llms) failed: %v", err)
	}
	if leaf == nil || len(leaf) != 0 {
		t.Errorf("leaf children = %v, want empty slice", leaf)
	}
}

func TestAncestors(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	tests := []struct {
		id   string
		want []string
	}{
		{"tech", nil},
		{"ai", []string{"tech"}},
		{"llms", []string{"tech", "ai"}},
	}
	for _, tt := range tests {
		got, err := Ancestors(db, tt.id)
		if err != nil {
			t.Fatalf("Ancestors(%s) failed: %v", tt.id, err)
		}
		if !equalIDs(got, tt.want...) {
			t.Errorf("Ancestors(%s) = %v, want %v", tt.id, ids(got), tt.want)
		}
	}

	if _, err := Ancestors(db, "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Ancestors(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestUpdateByID(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	r, _ := GetByID(db, "ai")
	r.Name = "Artificial Intelligence"
	r.NameNorm = topic.Normalize(r.Name)
	r.Description = "Models and more"
	if err := UpdateByID(db, r); err != nil {
		t.Fatalf("UpdateByID failed: %v", err)
	}

	got, _ := GetByID(db, "ai")
	if got.Name != "Artificial Intelligence" || got.Description != "Models and more" {
		t.Errorf("record = %+v", got)
	}

	// Renaming onto a sibling's name conflicts
	got.Name = "Chips"
	got.NameNorm = "chips"
	if err := UpdateByID(db, got); err != ErrUniqueConstraint {
		t.Errorf("UpdateByID() error = %v, want ErrUniqueConstraint", err)
	}

	missing := newTestRecord("missing", "Missing", nil)
	if err := UpdateByID(db, missing); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateByID(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestCheckNameExists(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	exists, err := CheckNameExists(db, stringPtr("tech"), "chips", "")
	if err != nil || !exists {
		t.Errorf("CheckNameExists(chips) = %v, %v", exists, err)
	}
	exists, _ = CheckNameExists(db, stringPtr("tech"), "chips", "chips")
	if exists {
		t.Error("a domain does not conflict with itself")
	}
	exists, _ = CheckNameExists(db, nil, "chips", "")
	if exists {
		t.Error("chips is not a root")
	}
}

func TestDeleteSubtree(t *testing.T) {
	db := openTestDB(t)
	seedTree(t, db)

	n, err := DeleteSubtree(db, "tech")
	if err != nil {
		t.Fatalf("DeleteSubtree failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}

	for _, id := range []string{"tech", "ai", "chips", "llms"} {
		if ok, _ := Exists(db, id); ok {
			t.Errorf("%s should be deleted", id)
		}
	}
	if ok, _ := Exists(db, "world"); !ok {
		t.Error("world should survive")
	}

	if _, err := DeleteSubtree(db, "tech"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete error = %v, want NOT_FOUND", err)
	}
}
