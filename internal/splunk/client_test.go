package splunk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"course-ingest/internal/config"
	"course-ingest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSplunk 는 관리 API 의 최소 동작을 흉내낸다.
type fakeSplunk struct {
	mu         sync.Mutex
	notReady   int32 // 이 횟수만큼 server/info 가 503
	infoCalls  int32
	indexes    map[string]bool
	inputs     map[string]string
	tokenOnPut bool // false 면 POST 응답에 token 을 넣지 않는다
	badAuth    int32
}

func newFakeSplunk() *fakeSplunk {
	return &fakeSplunk{indexes: map[string]bool{}, inputs: map[string]string{}}
}

func (f *fakeSplunk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if u, p, ok := r.BasicAuth(); !ok || u != "admin" || p != "password" {
		atomic.AddInt32(&f.badAuth, 1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == serverInfoPath:
		n := atomic.AddInt32(&f.infoCalls, 1)
		if n <= f.notReady {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == indexesPath && r.Method == http.MethodPost:
		name := r.FormValue("name")
		if f.indexes[name] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.indexes[name] = true
		w.WriteHeader(http.StatusCreated)

	case r.URL.Path == httpInputPath && r.Method == http.MethodPost:
		name := r.FormValue("name")
		status := http.StatusConflict
		if _, ok := f.inputs[name]; !ok {
			f.inputs[name] = "tok-" + name + "-" + r.FormValue("indexes")
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		if f.tokenOnPut && status == http.StatusCreated {
			_, _ = w.Write([]byte(`{"entry":[{"name":"` + name + `","content":{"token":"` + f.inputs[name] + `"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"type":"ERROR","text":"already exists"}]}`))

	case r.Method == http.MethodGet && len(r.URL.Path) > len(httpInputPath):
		name := r.URL.Path[len(httpInputPath)+1:]
		tok, ok := f.inputs[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"entry":[{"name":"` + name + `","content":{"token":"` + tok + `"}}]}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testClient(url string) *Client {
	cfg := config.Config{
		SplunkMgmtURL:  url,
		SplunkUser:     "admin",
		SplunkPassword: "password",
		MgmtTimeout:    time.Second,
		HealthTimeout:  200 * time.Millisecond,
		HealthInterval: 10 * time.Millisecond,
	}
	return NewClient(cfg, NewHTTPClient(0))
}

func TestWaitReadyPolls(t *testing.T) {
	fake := newFakeSplunk()
	fake.notReady = 3
	srv := httptest.NewServer(fake)
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).WaitReady(context.Background()))
	assert.EqualValues(t, 4, atomic.LoadInt32(&fake.infoCalls))
}

func TestWaitReadyTimesOut(t *testing.T) {
	fake := newFakeSplunk()
	fake.notReady = 1 << 30
	srv := httptest.NewServer(fake)
	defer srv.Close()

	start := time.Now()
	err := testClient(srv.URL).WaitReady(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCreateIndexIdempotent(t *testing.T) {
	srv := httptest.NewServer(newFakeSplunk())
	defer srv.Close()
	c := testClient(srv.URL)

	existed, err := c.CreateIndex(context.Background(), model.IndexSpec{Name: "course_web"})
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = c.CreateIndex(context.Background(), model.IndexSpec{Name: "course_web"})
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestCreateIndexUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(newFakeSplunk())
	defer srv.Close()

	cfg := config.Config{SplunkMgmtURL: srv.URL, SplunkUser: "admin", SplunkPassword: "wrong"}
	c := NewClient(cfg, NewHTTPClient(0))

	_, err := c.CreateIndex(context.Background(), model.IndexSpec{Name: "x"})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, serr.Status)
}

func TestEnsureTokenFromCreate(t *testing.T) {
	fake := newFakeSplunk()
	fake.tokenOnPut = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tok, err := testClient(srv.URL).EnsureToken(context.Background(), "course_hec", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, model.Token("tok-course_hec-a,b"), tok)
}

func TestEnsureTokenFallsBackToLookup(t *testing.T) {
	fake := newFakeSplunk()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := testClient(srv.URL)

	first, err := c.EnsureToken(context.Background(), "course_hec", []string{"a"})
	require.NoError(t, err)
	second, err := c.EnsureToken(context.Background(), "course_hec", []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestEnsureTokenNeedsIndexes(t *testing.T) {
	_, err := testClient("http://127.0.0.1:1").EnsureToken(context.Background(), "x", nil)
	require.Error(t, err)
}
