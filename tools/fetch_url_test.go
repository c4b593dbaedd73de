package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/notewright/config"
	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/llm"
)

type fetchFixture struct {
	srv      *httptest.Server
	requests atomic.Int32
	disp     *Dispatcher
}

func newFetchFixture(t *testing.T, handler http.HandlerFunc, mutate func(*config.ToolPolicy), opts ...DispatcherOption) *fetchFixture {
	t.Helper()
	f := &fetchFixture{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)

	policy := newTestPolicy(t, func(c *config.ToolPolicy) {
		c.AllowedDomains = []string{"127.0.0.1"}
		if mutate != nil {
			mutate(c)
		}
	})
	registry, err := NewDefaultRegistry(policy, f.srv.Client())
	require.NoError(t, err)
	opts = append([]DispatcherOption{withRetryBackoff(time.Millisecond)}, opts...)
	f.disp = NewDispatcher(registry, policy, opts...)
	return f
}

func (f *fetchFixture) fetch(t *testing.T, url string) (Result, error) {
	t.Helper()
	args, err := json.Marshal(map[string]string{"url": url})
	require.NoError(t, err)
	return f.disp.Dispatch(context.Background(), llm.ToolCall{ID: "call-1", Name: FetchURLName, Arguments: args})
}

func TestFetchURLSuccess(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("hello notes"))
	}, nil)

	result, err := f.fetch(t, f.srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)

	var out fetchURLOutput
	require.NoError(t, json.Unmarshal(result.Output, &out))
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, "text/plain", out.ContentType)
	assert.Equal(t, "hello notes", out.Content)
	assert.Equal(t, 11, out.Bytes)
	assert.Equal(t, f.srv.URL+"/page", out.FinalURL)
}

func TestFetchURLBlockedHostMakesNoRequest(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {}, nil)

	_, err := f.fetch(t, "http://evil.example/x")
	requireKind(t, err, PolicyBlocked)
	assert.Equal(t, fault.Policy, fault.CategoryOf(err))
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestFetchURLRedirectToDisallowedHost(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://evil.example/landing", http.StatusFound)
	}, nil)

	_, err := f.fetch(t, f.srv.URL+"/start")
	requireKind(t, err, PolicyBlocked)
	assert.Equal(t, int32(1), f.requests.Load(), "blocked redirect must not be retried")
}

func TestFetchURLRedirectsDisabled(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}, func(c *config.ToolPolicy) {
		c.FollowRedirects = false
	})

	_, err := f.fetch(t, f.srv.URL+"/start")
	requireKind(t, err, UpstreamFailure)
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestFetchURLByteCap(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 100)))
	}, func(c *config.ToolPolicy) {
		c.FetchMaxBytes = 16
	})

	_, err := f.fetch(t, f.srv.URL)
	requireKind(t, err, PolicyBlocked)
	assert.Contains(t, err.Error(), "response exceeds 16 bytes")
}

func TestFetchURLContentTypeBlocked(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}, nil)

	_, err := f.fetch(t, f.srv.URL)
	requireKind(t, err, PolicyBlocked)
	assert.Contains(t, err.Error(), "content type `image/png` is not allowed")
}

func TestFetchURLRetriesServerErrorOnce(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := f.fetch(t, f.srv.URL)
	requireKind(t, err, UpstreamFailure)
	assert.Equal(t, fault.Upstream, fault.CategoryOf(err))
	assert.Equal(t, int32(2), f.requests.Load())
}

func TestFetchURLRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<p>ok</p>"))
	}, nil)

	result, err := f.fetch(t, f.srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
}

func TestFetchURLClientErrorNotRetried(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, nil)

	_, err := f.fetch(t, f.srv.URL)
	requireKind(t, err, UpstreamFailure)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestFetchURLTimeoutRetriedOnce(t *testing.T) {
	f := newFetchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, nil, WithToolTimeout(50*time.Millisecond))

	_, err := f.fetch(t, f.srv.URL)
	requireKind(t, err, UpstreamFailure)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, int32(2), f.requests.Load())
}
