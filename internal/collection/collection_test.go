package collection

import (
	"context"
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/pkg/directory"
)

const membersBody = `{
  "results": [
    {"profile": {"id": "g:gatech:XkcBsFRK", "displayName": "Child Group",
      "picture": {"small": "/api/download/small.jpg"}}, "role": "member"},
    {"profile": {"id": "u:gatech:lknvFkQkb", "displayName": "Stephen Thomas"}, "role": "manager"}
  ],
  "nextToken": null
}`

var testEndpoint = Endpoint{Protocol: "https:", Host: "stemincubator.oaeproject.org"}

func newTestCollection(t *testing.T, kind Kind, transport Transport, opts ...Option) *Collection {
	t.Helper()
	c, err := New(Config{Kind: kind, Endpoint: testEndpoint, Transport: transport}, nil, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return c
}

// transportFunc adapts a function to Transport.
type transportFunc func(ctx context.Context, url, requestID string) ([]byte, error)

func (f transportFunc) Get(ctx context.Context, url, requestID string) ([]byte, error) {
	return f(ctx, url, requestID)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		opts []Option
		want string
	}{
		{
			name: "sub groups without limit",
			kind: SubGroups{},
			opts: []Option{WithParentID("g:si:7Ji6H8sI")},
			want: "https://stemincubator.oaeproject.org/api/group/g%3Asi%3A7Ji6H8sI/members",
		},
		{
			name: "sub groups with limit",
			kind: SubGroups{},
			opts: []Option{WithParentID("g:si:7Ji6H8sI"), WithLimit(25)},
			want: "https://stemincubator.oaeproject.org/api/group/g%3Asi%3A7Ji6H8sI/members?limit=25",
		},
		{
			name: "percent in parent is kept literal",
			kind: SubGroups{},
			opts: []Option{WithParentID("g:si:100%41")},
			want: "https://stemincubator.oaeproject.org/api/group/g%3Asi%3A100%2541/members",
		},
		{
			name: "member groups",
			kind: MemberGroups{},
			opts: []Option{WithParentID("u:si:abc")},
			want: "https://stemincubator.oaeproject.org/api/search/members-library/u%3Asi%3Aabc",
		},
		{
			name: "explicit zero limit is sent",
			kind: MemberGroups{},
			opts: []Option{WithParentID("u:si:abc"), WithLimit(0)},
			want: "https://stemincubator.oaeproject.org/api/search/members-library/u%3Asi%3Aabc?limit=0",
		},
		{
			name: "reserved characters in parent",
			kind: SubGroups{},
			opts: []Option{WithParentID("a/b c?d")},
			want: "https://stemincubator.oaeproject.org/api/group/a%2Fb%20c%3Fd/members",
		},
		{
			name: "empty parent",
			kind: SubGroups{},
			want: "https://stemincubator.oaeproject.org/api/group//members",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCollection(t, tt.kind, nil, tt.opts...)
			got, err := c.BuildURL()
			if err != nil {
				t.Fatalf("BuildURL() returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildURL_ProtocolWithoutColon(t *testing.T) {
	c, err := New(Config{Kind: SubGroups{}, Endpoint: Endpoint{Protocol: "http", Host: "localhost:8080"}}, nil,
		WithParentID("g1"))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	got, _ := c.BuildURL()
	if got != "http://localhost:8080/api/group/g1/members" {
		t.Errorf("BuildURL() = %q", got)
	}
}

func TestBuildURL_LocalKind(t *testing.T) {
	c := newTestCollection(t, Pois{}, nil)
	if _, err := c.BuildURL(); !errors.Is(err, ErrNotFetchable) {
		t.Errorf("expected ErrNotFetchable, got %v", err)
	}
	if err := c.Fetch(context.Background()); !errors.Is(err, ErrNotFetchable) {
		t.Errorf("Fetch() expected ErrNotFetchable, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Endpoint: testEndpoint}, nil); !errors.Is(err, ErrNilKind) {
		t.Errorf("expected ErrNilKind, got %v", err)
	}
	if _, err := New(Config{Kind: SubGroups{}}, nil); !errors.Is(err, ErrNoHost) {
		t.Errorf("expected ErrNoHost, got %v", err)
	}
	if _, err := New(Config{Kind: Pois{}}, nil); err != nil {
		t.Errorf("local kind should not need a host, got %v", err)
	}
}

func TestSetOptions_MergesOnlyGivenKeys(t *testing.T) {
	c := newTestCollection(t, SubGroups{}, nil, WithParentID("g1"), WithLimit(10))

	c.SetOptions(WithLimit(5))
	opts := c.Options()
	if opts.ParentID != "g1" {
		t.Errorf("ParentID = %q, want g1", opts.ParentID)
	}
	if n, ok := opts.LimitValue(); !ok || n != 5 {
		t.Errorf("Limit = %d (set=%v), want 5", n, ok)
	}

	c.SetOptions(WithParentID("g2"))
	got, _ := c.BuildURL()
	if got != "https://stemincubator.oaeproject.org/api/group/g2/members?limit=5" {
		t.Errorf("BuildURL() after SetOptions = %q", got)
	}

	c.SetOptions(WithoutLimit())
	got, _ = c.BuildURL()
	if strings.Contains(got, "limit") {
		t.Errorf("limit should be omitted after WithoutLimit, got %q", got)
	}
}

func TestOptions_ReturnsCopy(t *testing.T) {
	c := newTestCollection(t, SubGroups{}, nil, WithLimit(3))
	opts := c.Options()
	*opts.Limit = 99

	if n, _ := c.Options().LimitValue(); n != 3 {
		t.Errorf("mutating returned options changed the collection: limit = %d", n)
	}
}

func TestNew_InitialRecordsUsedAsIs(t *testing.T) {
	records := []directory.Record{
		{"id": "a", "picture": map[string]interface{}{"small": "/a.jpg"}},
		{"id": "b"},
	}
	c, err := New(Config{Kind: Pois{}}, records)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.At(0)[directory.FieldThumbnailURL]; ok {
		t.Error("initial records must not be normalized")
	}
	if diff := cmp.Diff(records, c.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_PopulatesFromResponse(t *testing.T) {
	var gotPath, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(membersBody))
	}))
	defer server.Close()

	c, err := New(Config{
		Kind:      SubGroups{},
		Endpoint:  Endpoint{Protocol: "http:", Host: strings.TrimPrefix(server.URL, "http://")},
		Transport: NewClient(ClientConfig{Timeout: 5 * time.Second}),
	}, nil, WithParentID("g:si:7Ji6H8sI"), WithLimit(2))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	var events []directory.Event
	unsubscribe := c.Subscribe(func(ev directory.Event) { events = append(events, ev) })
	defer unsubscribe()

	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}

	if gotPath != "/api/group/g%3Asi%3A7Ji6H8sI/members?limit=2" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotRequestID == "" {
		t.Error("expected X-Request-ID header")
	}

	want := []directory.Record{
		{
			"id":           "g:gatech:XkcBsFRK",
			"displayName":  "Child Group",
			"picture":      map[string]interface{}{"small": "/api/download/small.jpg"},
			"thumbnailUrl": "/api/download/small.jpg",
		},
		{"id": "u:gatech:lknvFkQkb", "displayName": "Stephen Thomas"},
	}
	if diff := cmp.Diff(want, c.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if r, ok := c.Get("u:gatech:lknvFkQkb"); !ok || r.String("displayName") != "Stephen Thomas" {
		t.Errorf("Get() = %v, %v", r, ok)
	}

	if len(events) != 1 || events[0].Type != directory.EventReset || len(events[0].Records) != 2 {
		t.Errorf("expected one reset event with 2 records, got %+v", events)
	}
}

func TestFetch_FlatArrayResponse(t *testing.T) {
	transport := transportFunc(func(_ context.Context, _, _ string) ([]byte, error) {
		return []byte(`[{"id":"p1","latitude":32.9},{"id":"p2","latitude":33.1}]`), nil
	})
	c := newTestCollection(t, MemberGroups{}, transport, WithParentID("u1"))

	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if c.Len() != 2 || c.At(0).ID() != "p1" || c.At(1).ID() != "p2" {
		t.Errorf("unexpected records %v", c.Records())
	}
}

func TestFetch_TransportFailureLeavesRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	initial := []directory.Record{{"id": "keep"}}
	c, err := New(Config{
		Kind:      SubGroups{},
		Endpoint:  Endpoint{Protocol: "http:", Host: strings.TrimPrefix(server.URL, "http://")},
		Transport: NewClient(ClientConfig{}),
	}, initial, WithParentID("g1"))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	var calls int
	c.Subscribe(func(directory.Event) { calls++ })

	err = c.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := errhandling.GetErrorCategory(err); got != errhandling.CategoryServer {
		t.Errorf("category = %s, want server", got)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected *HTTPError with status 500, got %v", err)
	}

	if c.Len() != 1 || c.At(0).ID() != "keep" {
		t.Errorf("records changed after failure: %v", c.Records())
	}
	if calls != 0 {
		t.Errorf("no event expected on failure, got %d", calls)
	}
}

func TestFetch_MalformedJSON(t *testing.T) {
	transport := transportFunc(func(_ context.Context, _, _ string) ([]byte, error) {
		return []byte(`{"results": [`), nil
	})
	c, err := New(Config{Kind: SubGroups{}, Endpoint: testEndpoint, Transport: transport},
		[]directory.Record{{"id": "keep"}}, WithParentID("g1"))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
	if c.Len() != 1 {
		t.Errorf("records changed after malformed response: %v", c.Records())
	}
}

func TestFetch_SecondFetchAbortsFirst(t *testing.T) {
	firstStarted := make(chan struct{})
	var calls atomic.Int32

	transport := transportFunc(func(ctx context.Context, _, _ string) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(firstStarted)
			<-ctx.Done()
			// A late response that must never be applied.
			return []byte(`[{"id":"stale"}]`), nil
		}
		return []byte(`[{"id":"fresh-1"},{"id":"fresh-2"}]`), nil
	})
	c := newTestCollection(t, SubGroups{}, transport, WithParentID("g1"))

	var mu sync.Mutex
	var resets int
	c.Subscribe(func(ev directory.Event) {
		if ev.Type == directory.EventReset {
			mu.Lock()
			resets++
			mu.Unlock()
		}
	})

	first := c.FetchAsync(context.Background())
	<-firstStarted
	second := c.FetchAsync(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := first.Wait(ctx); !errors.Is(err, errhandling.ErrAborted) {
		t.Errorf("first fetch error = %v, want ErrAborted", err)
	}
	if !first.Aborted() {
		t.Error("first request should report Aborted()")
	}
	if first.SupersededBy() != second.ID {
		t.Errorf("SupersededBy() = %q, want %q", first.SupersededBy(), second.ID)
	}
	if err := second.Wait(ctx); err != nil {
		t.Fatalf("second fetch error = %v", err)
	}
	if second.Aborted() {
		t.Error("second request should not be aborted")
	}

	if calls.Load() != 2 {
		t.Errorf("transport calls = %d, want 2", calls.Load())
	}
	if c.Len() != 2 || c.At(0).ID() != "fresh-1" {
		t.Errorf("expected second response applied, got %v", c.Records())
	}
	if _, ok := c.Get("stale"); ok {
		t.Error("stale response was applied")
	}
	mu.Lock()
	defer mu.Unlock()
	if resets != 1 {
		t.Errorf("reset events = %d, want 1", resets)
	}
}

func TestFetch_CompletedRequestIsNotAborted(t *testing.T) {
	transport := transportFunc(func(_ context.Context, _, _ string) ([]byte, error) {
		return []byte(`[{"id":"a"}]`), nil
	})
	c := newTestCollection(t, SubGroups{}, transport, WithParentID("g1"))

	first := c.FetchAsync(context.Background())
	<-first.Done()
	second := c.FetchAsync(context.Background())
	<-second.Done()

	if first.Aborted() || first.Err() != nil {
		t.Errorf("settled request must stay completed: aborted=%v err=%v", first.Aborted(), first.Err())
	}
}

func TestAdd_EmitsPerRecordAndSkipsDuplicates(t *testing.T) {
	c := newTestCollection(t, Pois{}, nil)

	var events []directory.Event
	unsubscribe := c.Subscribe(func(ev directory.Event) { events = append(events, ev) })

	n := c.Add(directory.Record{"id": "p1"}, directory.Record{"id": "p2"}, directory.Record{"id": "p1"})
	if n != 2 {
		t.Errorf("Add() = %d, want 2", n)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 add events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Type != directory.EventAdd || len(ev.Records) != 1 {
			t.Errorf("event %d = %+v", i, ev)
		}
	}

	unsubscribe()
	c.Add(directory.Record{"id": "p3"})
	if len(events) != 2 {
		t.Errorf("unsubscribed callback was called")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestReset_ReplacesRecords(t *testing.T) {
	c, err := New(Config{Kind: Pois{}}, []directory.Record{{"id": "old"}})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	var got directory.Event
	c.Subscribe(func(ev directory.Event) { got = ev })
	c.Reset([]directory.Record{{"id": "n1"}, {"id": "n2"}})

	if got.Type != directory.EventReset || len(got.Records) != 2 || got.Collection != "pois" {
		t.Errorf("unexpected event %+v", got)
	}
	if _, ok := c.Get("old"); ok {
		t.Error("old record still present")
	}
	if c.At(5) != nil {
		t.Error("At() out of range should return nil")
	}
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	client := NewClient(ClientConfig{RequestsPerSecond: 0.001, Burst: 1})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	if _, err := client.Get(context.Background(), server.URL, "r1"); err != nil {
		t.Fatalf("first request error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Get(ctx, server.URL, "r2"); err == nil {
		t.Error("expected rate limiter to refuse a request it cannot serve before the deadline")
	}
}

func TestAddAndReset_LogWithCollectionContext(t *testing.T) {
	var buf bytes.Buffer
	original := logger.Logger
	logger.SetOutput(&buf, slog.LevelDebug)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr, slog.LevelInfo)
		logger.Logger = original
	})

	c := newTestCollection(t, Pois{}, nil)
	c.Add(directory.Record{"id": "p1"}, directory.Record{"id": "p1"})
	c.Reset(nil)

	out := buf.String()
	for _, want := range []string{
		`"msg":"records added"`,
		`"added":1`,
		`"skipped":1`,
		`"msg":"records reset"`,
		`"collection":"pois"`,
		`"kind":"pois"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %s:\n%s", want, out)
		}
	}
}
