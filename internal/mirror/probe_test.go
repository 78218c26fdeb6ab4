package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSection = Section{
	Rule:      RuleReplace,
	Canonical: "https://huggingface.co",
	Probe:     "https://huggingface.co/probe.json",
}

type mirrorServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newMirror(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *mirrorServer {
	t.Helper()
	m := &mirrorServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func ok(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/probe.json" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("{}"))
}

func broken(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "down", http.StatusBadGateway)
}

func hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func TestSelectSingleMirrorSkipsProbing(t *testing.T) {
	m := newMirror(t, broken)
	p := NewProber(m.Client(), testSection)
	got, found := p.Select(context.Background(), One(m.URL), time.Second)
	require.True(t, found)
	require.Equal(t, m.URL, got)
	require.Equal(t, int32(0), m.hits.Load())
}

func TestSelectIsOrderPreserving(t *testing.T) {
	a := newMirror(t, broken)
	b := newMirror(t, ok)
	c := newMirror(t, ok)
	p := NewProber(http.DefaultClient, testSection)

	got, found := p.Select(context.Background(), List(a.URL, b.URL, c.URL), time.Second)
	require.True(t, found)
	require.Equal(t, b.URL, got)
	require.Equal(t, int32(1), a.hits.Load())
	require.Equal(t, int32(1), b.hits.Load())
	require.Equal(t, int32(0), c.hits.Load(), "candidates after the winner are never probed")
}

func TestSelectSkipsTimedOutMirror(t *testing.T) {
	bad := newMirror(t, hang)
	good := newMirror(t, ok)
	p := NewProber(http.DefaultClient, testSection)

	start := time.Now()
	got, found := p.Select(context.Background(), List(bad.URL, good.URL), 200*time.Millisecond)
	require.True(t, found)
	require.Equal(t, good.URL, got)
	require.Equal(t, int32(1), bad.hits.Load())
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestSelectNoneReachable(t *testing.T) {
	a := newMirror(t, broken)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	p := NewProber(http.DefaultClient, testSection)

	got, found := p.Select(context.Background(), List(deadURL, a.URL), time.Second)
	require.False(t, found)
	require.Empty(t, got)
}

func TestSelectEmptyList(t *testing.T) {
	got, found := NewProber(http.DefaultClient, testSection).Select(context.Background(), List(), time.Second)
	require.False(t, found)
	require.Empty(t, got)
}

func TestSelectUsesRewrittenProbeURL(t *testing.T) {
	var seen atomic.Value
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	section := Section{Rule: RulePrefix, Canonical: "https://github.com", Probe: "https://github.com/git/git/raw/master/README.md"}
	_, found := NewProber(http.DefaultClient, section).Select(context.Background(), List(m.URL), time.Second)
	require.True(t, found)
	require.Equal(t, "/https://github.com/git/git/raw/master/README.md", seen.Load())
}
