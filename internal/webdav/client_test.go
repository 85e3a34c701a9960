package webdav

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	xwebdav "golang.org/x/net/webdav"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL:       ts.URL,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: time.Millisecond,
	})
	return c, ts
}

func TestList_RequestShape(t *testing.T) {
	var gotMethod, gotDepth, gotPath string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDepth = r.Header.Get("Depth")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(docsMultistatus))
	}))
	defer ts.Close()

	props, err := c.List(context.Background(), "/docs", DepthWithChildren)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != "PROPFIND" {
		t.Errorf("expected PROPFIND, got %s", gotMethod)
	}
	if gotDepth != "1" {
		t.Errorf("expected Depth 1, got %q", gotDepth)
	}
	if gotPath != "/docs" {
		t.Errorf("expected path /docs, got %q", gotPath)
	}
	if len(props) != 3 {
		t.Errorf("expected 3 records, got %d", len(props))
	}
}

func TestList_DepthHeaders(t *testing.T) {
	tests := []struct {
		depth Depth
		want  string
	}{
		{DepthElementOnly, "0"},
		{DepthWithChildren, "1"},
		{DepthRecursive, "infinity"},
	}
	for _, tc := range tests {
		if got := tc.depth.Header(); got != tc.want {
			t.Errorf("depth %d: expected header %q, got %q", tc.depth, tc.want, got)
		}
	}
}

func TestList_NonSuccessStatus(t *testing.T) {
	var calls atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := c.List(context.Background(), "/missing", DepthWithChildren)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestList_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(docsMultistatus))
	}))
	defer ts.Close()

	props, err := c.List(context.Background(), "/docs", DepthWithChildren)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if len(props) != 3 {
		t.Errorf("expected 3 records, got %d", len(props))
	}
}

func TestList_TransportFailure(t *testing.T) {
	c := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		Timeout:       500 * time.Millisecond,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: time.Millisecond,
	})

	_, err := c.List(context.Background(), "/", DepthElementOnly)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if c.IsOnline() {
		t.Error("client should report offline after transport failure")
	}
}

func TestAuthHeaders(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(docsMultistatus))
	})

	t.Run("basic", func(t *testing.T) {
		c, ts := testClient(handler)
		defer ts.Close()
		c.SetBasicAuth("alice", "secret")

		if _, err := c.List(context.Background(), "/", DepthElementOnly); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req, _ := http.NewRequest("GET", "/", nil)
		req.SetBasicAuth("alice", "secret")
		if gotAuth != req.Header.Get("Authorization") {
			t.Errorf("unexpected basic auth header %q", gotAuth)
		}
	})

	t.Run("bearer", func(t *testing.T) {
		c, ts := testClient(handler)
		defer ts.Close()
		c.SetAuthToken("tok123")

		if _, err := c.List(context.Background(), "/", DepthElementOnly); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotAuth != "Bearer tok123" {
			t.Errorf("expected bearer header, got %q", gotAuth)
		}
	})
}

func TestPing(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "OPTIONS" {
			t.Errorf("expected OPTIONS, got %s", r.Method)
		}
		w.Header().Set("DAV", "1, 2")
	}))
	defer ts.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsOnline() {
		t.Error("client should report online after successful ping")
	}
}

// newDavServer serves a real WebDAV tree with /docs/a.txt (10 bytes) and
// /docs/sub.
func newDavServer(t *testing.T) *httptest.Server {
	t.Helper()
	memFS := xwebdav.NewMemFS()
	ctx := context.Background()
	if err := memFS.Mkdir(ctx, "/docs", 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := memFS.Mkdir(ctx, "/docs/sub", 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := memFS.OpenFile(ctx, "/docs/a.txt", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.Write([]byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	handler := &xwebdav.Handler{
		FileSystem: memFS,
		LockSystem: xwebdav.NewMemLS(),
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestList_AgainstRealServer(t *testing.T) {
	ts := newDavServer(t)
	c := New(Config{BaseURL: ts.URL, RetryAttempts: 1})

	props, err := c.List(context.Background(), "/docs", DepthWithChildren)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byName := make(map[string]Prop)
	for _, p := range props {
		byName[p.Name()] = p
	}

	a, ok := byName["a.txt"]
	if !ok {
		t.Fatal("a.txt missing from listing")
	}
	if a.Type != TypeFile {
		t.Errorf("a.txt should be a file, got %v", a.Type)
	}
	if a.Size != 10 {
		t.Errorf("a.txt should have size 10, got %d", a.Size)
	}
	if a.Etag == "" {
		t.Error("a.txt should carry an etag")
	}

	sub, ok := byName["sub"]
	if !ok {
		t.Fatal("sub missing from listing")
	}
	if sub.Type != TypeCollection {
		t.Errorf("sub should be a collection, got %v", sub.Type)
	}
}
