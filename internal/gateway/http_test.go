package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/topic"
)

func newTestClient(t *testing.T, h http.HandlerFunc, breaker *BreakerSettings) (*HTTPClient, *Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	metrics := NewMetrics("test")
	c := NewHTTPClient(Options{
		BaseURL: srv.URL + "/",
		Timeout: 2 * time.Second,
		Breaker: breaker,
		Metrics: metrics,
	})
	return c, metrics
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListDomains_Root(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/domains" || r.URL.RawQuery != "" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("missing request id header")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"domains": []map[string]any{
				{"id": "world", "name": "World", "description": "", "parentId": nil},
				{"id": "tech", "name": "Tech", "description": "", "parentId": nil},
			},
			"distances": map[string]float64{"tech|world": 4.2},
		})
	}, nil)

	listing, err := c.ListDomains(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if len(listing.Domains) != 2 || listing.Domains[0].Name != "World" {
		t.Fatalf("Domains = %+v", listing.Domains)
	}
	if v, ok := listing.Distances.Get("World", "Tech"); ok || v != 0 {
		t.Errorf("distance keys are ids, not names")
	}
	if v, ok := listing.Distances.Get("world", "tech"); !ok || v != 4.2 {
		t.Errorf("distance(world, tech) = %v, %v", v, ok)
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(OpListDomains, outcomeSuccess)); got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
}

func TestListDomains_ChildrenWithSemanticDistancesKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("parentId"); got != "tech" {
			t.Errorf("parentId = %q, want tech", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"domains": []map[string]any{
				{"id": "ai", "name": "AI", "parentId": "tech"},
				{"id": "chips", "name": "Chips", "parentId": "tech"},
			},
			"semanticDistances": map[string]float64{"ai|chips": 2.5},
		})
	}, nil)

	listing, err := c.ListDomains(context.Background(), topic.IDPtr("tech"))
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if v, ok := listing.Distances.Get("chips", "ai"); !ok || v != 2.5 {
		t.Errorf("distance(chips, ai) = %v, %v", v, ok)
	}
}

func TestListDomains_EmptyBodyFieldsNeverNil(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	}, nil)

	listing, err := c.ListDomains(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if listing.Domains == nil || listing.Distances == nil {
		t.Errorf("listing = %+v, want empty non-nil fields", listing)
	}
}

func TestServerErrorBecomesNetworkOrServerFailure(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Domain not found"})
	}, nil)

	_, err := c.GetPath(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetPath() expected error")
	}
	if !errors.Is(err, errors.ErrNetworkOrServer) {
		t.Fatalf("error code = %v, want NETWORK_OR_SERVER_FAILURE", err)
	}
	navErr, _ := errors.As(err)
	if navErr.Details["upstream_status"] != http.StatusNotFound {
		t.Errorf("upstream_status = %v", navErr.Details["upstream_status"])
	}
	if navErr.Details["operation"] != OpGetPath {
		t.Errorf("operation = %v", navErr.Details["operation"])
	}
	if !strings.Contains(navErr.Message, "Domain not found") {
		t.Errorf("Message = %q, want backend error text", navErr.Message)
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(OpGetPath, outcomeFailure)); got != 1 {
		t.Errorf("failure counter = %v, want 1", got)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(Options{BaseURL: url, Timeout: time.Second})
	_, err := c.ListPosts(context.Background(), "tech")
	if !errors.Is(err, errors.ErrNetworkOrServer) {
		t.Fatalf("ListPosts() error = %v, want NETWORK_OR_SERVER_FAILURE", err)
	}
	navErr, _ := errors.As(err)
	if _, ok := navErr.Details["upstream_status"]; ok {
		t.Error("transport failures have no upstream status")
	}
}

func TestTimeoutIsOrdinaryFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewHTTPClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.ListDomains(context.Background(), nil)
	if !errors.Is(err, errors.ErrNetworkOrServer) {
		t.Fatalf("ListDomains() error = %v, want NETWORK_OR_SERVER_FAILURE", err)
	}
}

func TestCreateDomainSendsBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/domains" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var in CreateDomainInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if in.Name != "AI" || in.ParentID == nil || *in.ParentID != "tech" {
			t.Errorf("body = %+v", in)
		}
		writeJSON(w, http.StatusCreated, topic.Domain{ID: "ai", Name: in.Name, ParentID: in.ParentID})
	}, nil)

	d, err := c.CreateDomain(context.Background(), CreateDomainInput{Name: "AI", ParentID: topic.IDPtr("tech")})
	if err != nil {
		t.Fatalf("CreateDomain() error = %v", err)
	}
	if d.ID != "ai" {
		t.Errorf("ID = %q", d.ID)
	}
}

func TestCreateDomainRootSendsNullParent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"parentId":null`) {
			t.Errorf("body = %s, want explicit null parentId", body)
		}
		writeJSON(w, http.StatusCreated, topic.Domain{ID: "world", Name: "World"})
	}, nil)

	if _, err := c.CreateDomain(context.Background(), CreateDomainInput{Name: "World"}); err != nil {
		t.Fatalf("CreateDomain() error = %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			if r.URL.Path != "/api/domains/ai" {
				t.Errorf("path = %s", r.URL.Path)
			}
			writeJSON(w, http.StatusOK, topic.Domain{ID: "ai", Name: "Artificial Intelligence"})
		case http.MethodDelete:
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}, nil)

	name := "Artificial Intelligence"
	d, err := c.UpdateDomain(context.Background(), "ai", UpdateDomainInput{Name: &name})
	if err != nil || d.Name != name {
		t.Fatalf("UpdateDomain() = %+v, %v", d, err)
	}
	if err := c.DeleteDomain(context.Background(), "ai"); err != nil {
		t.Fatalf("DeleteDomain() error = %v", err)
	}
}

func TestPostsAndSummarize(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/domains/tech/x-posts":
			writeJSON(w, http.StatusOK, map[string]any{"posts": []map[string]any{
				{"id": "tech_1", "text": "hello", "author": map[string]string{"username": "u", "name": "U"}, "created_at": "2023-03-21T12:34:56Z"},
			}})
		case "/api/domains/tech/x-posts/summarize":
			var body struct {
				Posts []topic.Post `json:"posts"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Posts) != 1 {
				t.Errorf("summarize body = %+v, %v", body, err)
			}
			writeJSON(w, http.StatusOK, map[string]string{"summary": "one post", "domain_id": "tech", "domain_name": "Tech"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, nil)

	posts, err := c.ListPosts(context.Background(), "tech")
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(posts) != 1 || posts[0].Author == nil || posts[0].Author.Username != "u" {
		t.Fatalf("posts = %+v", posts)
	}

	summary, err := c.Summarize(context.Background(), "tech", posts)
	if err != nil || summary != "one post" {
		t.Fatalf("Summarize() = %q, %v", summary, err)
	}
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits atomic.Int32
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	}, &BreakerSettings{FailureThreshold: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := c.ListDomains(context.Background(), nil); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := c.ListDomains(context.Background(), nil)
	if !errors.Is(err, errors.ErrNetworkOrServer) {
		t.Fatalf("open breaker error = %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("backend hits = %d, want 2 (third call rejected locally)", hits.Load())
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(OpListDomains, outcomeRejected)); got != 1 {
		t.Errorf("rejected counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.BreakerState); got != 2 {
		t.Errorf("breaker state = %v, want 2 (open)", got)
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Domain not found"})
	}, &BreakerSettings{FailureThreshold: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = c.GetDomain(context.Background(), "missing")
	}
	if hits.Load() != 3 {
		t.Errorf("backend hits = %d, want 3", hits.Load())
	}
}

func TestMetricsHandler(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"domains": []any{}})
	}, nil)
	if _, err := c.ListDomains(context.Background(), nil); err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "test_gateway_requests_total") {
		t.Errorf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error": "No posts provided to summarize."}`, "No posts provided to summarize."},
		{"plain failure\n", "plain failure"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := errorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
