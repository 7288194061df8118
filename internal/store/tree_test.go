package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/gateway"
	"github.com/hpungsan/topicnav/internal/gateway/gatewaytest"
	"github.com/hpungsan/topicnav/internal/topic"
)

// newWorld seeds:
//
//	world
//	tech
//	├── ai
//	│   └── llms
//	└── chips
func newWorld() *gatewaytest.Fake {
	f := gatewaytest.NewFake()
	f.Seed("world", "World", "World news", "")
	f.Seed("tech", "Tech", "Technology", "")
	f.Seed("ai", "AI", "Artificial intelligence", "tech")
	f.Seed("chips", "Chips", "Semiconductors", "tech")
	f.Seed("llms", "LLMs", "Language models", "ai")
	f.SetDistance("world", "tech", 4.2)
	f.SetDistance("ai", "chips", 3)
	return f
}

func names(domains []topic.Domain) []string {
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = d.Name
	}
	return out
}

func newLoadedTree(t *testing.T, f *gatewaytest.Fake) *TreeStore {
	t.Helper()
	s := NewTreeStore(f, zap.NewNop())
	require.NoError(t, s.Load(context.Background(), nil))
	return s
}

func TestTreeStore_InitialState(t *testing.T) {
	s := NewTreeStore(newWorld(), nil)
	st := s.State()
	assert.Nil(t, st.ActiveNodeID)
	assert.Empty(t, st.Domains)
	assert.NotNil(t, st.Domains)
	assert.Empty(t, st.Path)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestTreeStore_ExampleNavigation(t *testing.T) {
	ctx := context.Background()
	s := newLoadedTree(t, newWorld())

	st := s.State()
	require.Equal(t, []string{"World", "Tech"}, names(st.Domains))
	d, ok := st.Distances.Get("tech", "world")
	require.True(t, ok)
	assert.Equal(t, 4.2, d)
	assert.Empty(t, st.Path)

	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))
	st = s.State()
	assert.Equal(t, "tech", *st.ActiveNodeID)
	assert.Equal(t, []string{"AI", "Chips"}, names(st.Domains))
	assert.Empty(t, st.Path)
	require.NotNil(t, st.ActiveDomain)
	assert.Equal(t, "Tech", st.ActiveDomain.Name)

	require.NoError(t, s.Navigate(ctx, topic.IDPtr("ai")))
	st = s.State()
	assert.Equal(t, []string{"LLMs"}, names(st.Domains))
	assert.Equal(t, []string{"Tech"}, names(st.Path))
	assert.Equal(t, "AI", st.ActiveDomain.Name)
	assert.Equal(t, StatusIdle, st.Status)

	// Back up through the path
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))
	st = s.State()
	assert.Equal(t, "Tech", st.ActiveDomain.Name)
	assert.Empty(t, st.Path)
}

func TestTreeStore_DistancesRestrictedToSiblings(t *testing.T) {
	s := newLoadedTree(t, newWorld())
	require.NoError(t, s.Navigate(context.Background(), topic.IDPtr("tech")))

	st := s.State()
	_, ok := st.Distances.Get("world", "tech")
	assert.False(t, ok, "distances of another level must not leak")
	v, ok := st.Distances.Get("chips", "ai")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestTreeStore_NavigateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newLoadedTree(t, newWorld())

	var notified int
	s.OnActiveChange(func(*string) func(context.Context) {
		notified++
		return nil
	})

	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))
	once := s.State()
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))
	twice := s.State()

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, notified, "observers run only when the active node changes")
}

func TestTreeStore_ObserversSeeActiveNode(t *testing.T) {
	ctx := context.Background()
	s := newLoadedTree(t, newWorld())

	var mu sync.Mutex
	var seen []*string
	s.OnActiveChange(func(id *string) func(context.Context) {
		return func(context.Context) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, id)
		}
	})

	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))
	require.NoError(t, s.Navigate(ctx, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, "tech", *seen[0])
	assert.Nil(t, seen[1])
}

func TestTreeStore_ObserversCalledInChangeOrder(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		s := newLoadedTree(t, newWorld())
		require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))

		// Called with the store locked, so no extra synchronization is needed.
		var order []string
		s.OnActiveChange(func(id *string) func(context.Context) {
			order = append(order, *id)
			return nil
		})

		var wg sync.WaitGroup
		for _, id := range []string{"ai", "chips"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Navigate(ctx, topic.IDPtr(id)))
			}()
		}
		wg.Wait()

		require.Len(t, order, 2)
		assert.Equal(t, order[1], *s.State().ActiveNodeID, "run %d: last notified node must be the active node", i)
	}
}

func TestTreeStore_StaleLoadDiscarded_OlderArrivesLast(t *testing.T) {
	ctx := context.Background()
	f := newWorld()
	s := newLoadedTree(t, f)

	gate := f.Hold(gateway.OpListDomains, "tech")
	done := make(chan error, 1)
	go func() { done <- s.Navigate(ctx, topic.IDPtr("tech")) }()
	<-gate.Entered()

	// Newer navigation completes first.
	require.NoError(t, s.Navigate(ctx, nil))
	require.Equal(t, []string{"World", "Tech"}, names(s.State().Domains))

	gate.Release()
	require.NoError(t, <-done)

	st := s.State()
	assert.Nil(t, st.ActiveNodeID)
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))
	assert.Equal(t, StatusIdle, st.Status)
}

func TestTreeStore_StaleLoadDiscarded_OlderArrivesFirst(t *testing.T) {
	ctx := context.Background()
	f := newWorld()
	s := newLoadedTree(t, f)

	older := f.Hold(gateway.OpListDomains, "tech")
	newer := f.Hold(gateway.OpListDomains, "")

	olderDone := make(chan error, 1)
	go func() { olderDone <- s.Navigate(ctx, topic.IDPtr("tech")) }()
	<-older.Entered()

	newerDone := make(chan error, 1)
	go func() { newerDone <- s.Navigate(ctx, nil) }()
	<-newer.Entered()

	older.Release()
	require.NoError(t, <-olderDone)

	st := s.State()
	assert.Equal(t, StatusLoading, st.Status, "the newer load is still in flight")
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains), "superseded result must not be applied")

	newer.Release()
	require.NoError(t, <-newerDone)

	st = s.State()
	assert.Nil(t, st.ActiveNodeID)
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))
	assert.Equal(t, StatusIdle, st.Status)
}

func TestTreeStore_LoadForInactiveParentDiscarded(t *testing.T) {
	s := newLoadedTree(t, newWorld())

	require.NoError(t, s.Load(context.Background(), topic.IDPtr("tech")))

	st := s.State()
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))
	assert.Equal(t, StatusIdle, st.Status)
}

func TestTreeStore_FailedLoadPreservesDomains(t *testing.T) {
	ctx := context.Background()
	f := newWorld()
	s := newLoadedTree(t, f)

	f.Fail(gateway.OpListDomains, nil)
	err := s.Navigate(ctx, topic.IDPtr("tech"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))

	st := s.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, errors.ErrFetchFailed, st.ErrorCode)
	assert.Equal(t, "Failed to fetch news topics. Please try again.", st.ErrorMessage)
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))

	// Recovery is user-triggered.
	f.Recover(gateway.OpListDomains)
	require.NoError(t, s.Reload(ctx))
	st = s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.ErrorMessage)
	assert.Equal(t, []string{"AI", "Chips"}, names(st.Domains))
}

func TestTreeStore_FailedPathFetch(t *testing.T) {
	f := newWorld()
	s := newLoadedTree(t, f)

	f.Fail(gateway.OpGetPath, nil)
	err := s.Navigate(context.Background(), topic.IDPtr("ai"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPathFetchFailed))

	st := s.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, "Failed to fetch the news topic path. Please try again.", st.ErrorMessage)
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))
}

func TestTreeStore_NavigateResolvesUnknownActiveDomain(t *testing.T) {
	f := newWorld()
	s := NewTreeStore(f, zap.NewNop())

	require.NoError(t, s.Navigate(context.Background(), topic.IDPtr("ai")))

	st := s.State()
	require.NotNil(t, st.ActiveDomain)
	assert.Equal(t, "AI", st.ActiveDomain.Name)
	assert.Equal(t, []string{"Tech"}, names(st.Path))
	assert.Equal(t, []string{"ai"}, f.Calls(gateway.OpGetDomain))
}

func TestTreeStore_ActiveDomainLookupFailureNotFatal(t *testing.T) {
	f := newWorld()
	f.Fail(gateway.OpGetDomain, nil)
	s := NewTreeStore(f, zap.NewNop())

	require.NoError(t, s.Navigate(context.Background(), topic.IDPtr("ai")))
	st := s.State()
	assert.Nil(t, st.ActiveDomain)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestTreeStore_AddDomainResyncs(t *testing.T) {
	ctx := context.Background()
	f := newWorld()
	s := newLoadedTree(t, f)
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))

	created, err := s.AddDomain(ctx, "Robotics", "Robots")
	require.NoError(t, err)
	require.NotNil(t, created.ParentID)
	assert.Equal(t, "tech", *created.ParentID)

	st := s.State()
	assert.Equal(t, []string{"AI", "Chips", "Robotics"}, names(st.Domains))
	assert.Equal(t, []string{"", "tech", "tech"}, f.Calls(gateway.OpListDomains))
}

func TestTreeStore_AddDomainAtRoot(t *testing.T) {
	f := newWorld()
	s := newLoadedTree(t, f)

	created, err := s.AddDomain(context.Background(), "Sports", "")
	require.NoError(t, err)
	assert.True(t, created.IsRoot())
	assert.Equal(t, []string{"World", "Tech", "Sports"}, names(s.State().Domains))
}

func TestTreeStore_AddDomainFailure(t *testing.T) {
	f := newWorld()
	s := newLoadedTree(t, f)
	f.Fail(gateway.OpCreateDomain, nil)

	_, err := s.AddDomain(context.Background(), "Sports", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCreateFailed))

	st := s.State()
	assert.Equal(t, "Failed to add news topic. Please try again.", st.ErrorMessage)
	assert.Equal(t, StatusIdle, st.Status)
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))
	assert.Equal(t, []string{""}, f.Calls(gateway.OpListDomains), "no reload after a failed create")
}

func TestTreeStore_DeleteActiveResetsToRoot(t *testing.T) {
	ctx := context.Background()
	f := newWorld()
	s := newLoadedTree(t, f)
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))

	var last *string
	notified := false
	s.OnActiveChange(func(id *string) func(context.Context) {
		notified = true
		last = id
		return nil
	})

	require.NoError(t, s.DeleteDomain(ctx, "tech"))

	st := s.State()
	assert.Nil(t, st.ActiveNodeID)
	assert.Nil(t, st.ActiveDomain)
	assert.Equal(t, []string{"World"}, names(st.Domains))
	assert.Empty(t, st.Path)
	assert.True(t, notified)
	assert.Nil(t, last)
}

func TestTreeStore_DeleteAncestorResetsToRoot(t *testing.T) {
	ctx := context.Background()
	s := newLoadedTree(t, newWorld())
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("ai")))

	require.NoError(t, s.DeleteDomain(ctx, "tech"))

	st := s.State()
	assert.Nil(t, st.ActiveNodeID)
	assert.Equal(t, []string{"World"}, names(st.Domains))
}

func TestTreeStore_DeleteSiblingReloadsLevel(t *testing.T) {
	ctx := context.Background()
	s := newLoadedTree(t, newWorld())
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))

	require.NoError(t, s.DeleteDomain(ctx, "chips"))

	st := s.State()
	assert.Equal(t, "tech", *st.ActiveNodeID)
	assert.Equal(t, []string{"AI"}, names(st.Domains))
}

func TestTreeStore_DeleteFailure(t *testing.T) {
	f := newWorld()
	s := newLoadedTree(t, f)
	f.Fail(gateway.OpDeleteDomain, nil)

	err := s.DeleteDomain(context.Background(), "tech")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeleteFailed))

	st := s.State()
	assert.Equal(t, "Failed to delete news topic. Please try again.", st.ErrorMessage)
	assert.Equal(t, []string{"World", "Tech"}, names(st.Domains))
}

func TestTreeStore_UpdateActiveDomain(t *testing.T) {
	ctx := context.Background()
	s := newLoadedTree(t, newWorld())
	require.NoError(t, s.Navigate(ctx, topic.IDPtr("tech")))

	name := "Technology"
	updated, err := s.UpdateDomain(ctx, "tech", gateway.UpdateDomainInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, name, s.State().ActiveDomain.Name)
}

func TestTreeStore_UpdateFailure(t *testing.T) {
	f := newWorld()
	s := newLoadedTree(t, f)
	f.Fail(gateway.OpUpdateDomain, nil)

	name := "Technology"
	_, err := s.UpdateDomain(context.Background(), "tech", gateway.UpdateDomainInput{Name: &name})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpdateFailed))
	assert.Equal(t, "Failed to update news topic. Please try again.", s.State().ErrorMessage)
}

func TestTreeStore_StateIsIndependent(t *testing.T) {
	s := newLoadedTree(t, newWorld())
	st := s.State()
	st.Domains[0].Name = "changed"
	st.Distances.Set("world", "tech", 99)

	again := s.State()
	assert.Equal(t, "World", again.Domains[0].Name)
	v, _ := again.Distances.Get("world", "tech")
	assert.Equal(t, 4.2, v)
}
