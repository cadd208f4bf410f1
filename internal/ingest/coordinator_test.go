package ingest

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"course-ingest/internal/config"
	"course-ingest/internal/metrics"
	"course-ingest/internal/model"
	"course-ingest/internal/parser"
	"course-ingest/internal/splunk"
	"course-ingest/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStack 는 관리 API 와 HEC 를 한 서버에서 흉내낸다.
type fakeStack struct {
	mu          sync.Mutex
	indexes     map[string]bool
	failIndex   string
	token       string
	eventsByIdx map[string]int
	badTokens   int
}

func newFakeStack() *fakeStack {
	return &fakeStack{indexes: map[string]bool{}, eventsByIdx: map[string]int{}, token: "tok-abc"}
}

func (f *fakeStack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/services/server/info":
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/servicesNS/nobody/system/data/indexes":
		name := r.FormValue("name")
		switch {
		case name == f.failIndex:
			w.WriteHeader(http.StatusInternalServerError)
		case f.indexes[name]:
			w.WriteHeader(http.StatusConflict)
		default:
			f.indexes[name] = true
			w.WriteHeader(http.StatusCreated)
		}

	case strings.HasPrefix(r.URL.Path, "/servicesNS/admin/splunk_httpinput/data/inputs/http"):
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"entry":[{"content":{"token":"` + f.token + `"}}]}`))

	case r.URL.Path == worker.CollectorPath:
		if r.Header.Get("Authorization") != "Splunk "+f.token {
			f.badTokens++
			w.WriteHeader(http.StatusForbidden)
			return
		}
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			line := sc.Text()
			start := strings.Index(line, `"index":"`) + len(`"index":"`)
			end := strings.Index(line[start:], `"`)
			f.eventsByIdx[line[start:start+end]]++
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type fakeLookups struct {
	src, dest string
	err       error
}

func (f *fakeLookups) CopyFile(ctx context.Context, src, destDir string) error {
	f.src, f.dest = src, destDir
	return f.err
}

func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func testManifest() model.Manifest {
	return model.Manifest{
		Indexes: []model.IndexSpec{{Name: "web"}, {Name: "app"}, {Name: "api"}},
		Files: []model.FileSpec{
			{File: "web_access.log", Index: "web", SourceType: "access_combined"},
			{File: "application.log", Index: "app", SourceType: "syslog"},
			{File: "missing.log", Index: "app", SourceType: "syslog"},
			{File: "api.log", Index: "api", SourceType: "_json"},
		},
	}
}

func setup(t *testing.T, stack *fakeStack, lookups LookupUploader) (*Coordinator, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(stack)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	writeFile(t, dir, "web_access.log",
		`10.0.0.1 - user0001 [18/Oct/2025:04:14:34 +0000] "GET /home HTTP/1.1" 200 512 "-" "Mozilla/5.0" 120ms`,
		`10.0.0.2 - - [18/Oct/2025:04:14:35 +0000] "POST /cart HTTP/1.1" 302 0 "https://x/" "curl/8" 5ms`,
	)
	writeFile(t, dir, "application.log",
		`2025-10-18 04:14:34 level=INFO service=cart msg="added item"`,
		`not a kv line`,
		`2025-10-18 04:14:35 level=ERROR latency=1.5 code=500`,
	)
	writeFile(t, dir, "api.log", `{"endpoint":"/v1/users","status":200}`)
	writeFile(t, dir, "users.csv", "user,dept", "user0001,eng")

	cfg := config.Config{
		SplunkMgmtURL:  srv.URL,
		SplunkHECURL:   srv.URL,
		SplunkUser:     "admin",
		SplunkPassword: "password",
		MgmtTimeout:    time.Second,
		HealthTimeout:  time.Second,
		HealthInterval: 10 * time.Millisecond,
		BatchSize:      1000,
		HECTimeout:     time.Second,
		HostTag:        "course-data",
	}
	m := metrics.New()
	admin := splunk.NewClient(cfg, splunk.NewHTTPClient(0))
	tx := worker.NewTransmitter(cfg, splunk.NewHTTPClient(0), nil, m)

	coord := NewCoordinator(admin, tx, lookups, testManifest(), Options{
		DataDir:    dir,
		TokenName:  "course_hec",
		LookupFile: "users.csv",
		LookupDest: "/opt/splunk/etc/apps/search/lookups",
		Parsers:    parser.NewRegistry(func() int64 { return 1700000000 }),
	}, m)
	return coord, m
}

func TestRunLoadsEveryFile(t *testing.T) {
	stack := newFakeStack()
	lookups := &fakeLookups{}
	coord, m := setup(t, stack, lookups)

	sum, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.Token("tok-abc"), sum.Token)
	assert.Equal(t, 3, sum.Indexes)
	require.Len(t, sum.Files, 4)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	require.Error(t, sum.Err())

	byFile := map[string]FileResult{}
	for _, r := range sum.Files {
		byFile[r.Spec.File] = r
	}
	assert.Equal(t, model.CombinedLog, byFile["web_access.log"].Format)
	assert.Equal(t, 2, byFile["web_access.log"].Events)
	assert.Equal(t, 2, byFile["application.log"].Events)
	assert.Equal(t, 1, byFile["application.log"].Skipped)
	assert.Equal(t, model.JSONLines, byFile["api.log"].Format)
	assert.Error(t, byFile["missing.log"].Err)

	assert.Equal(t, map[string]int{"web": 2, "app": 2, "api": 1}, stack.eventsByIdx)
	assert.Zero(t, stack.badTokens)
	assert.Equal(t, int64(3), m.FilesLoadedTotal)
	assert.Equal(t, int64(1), m.FilesFailedTotal)

	assert.True(t, strings.HasSuffix(lookups.src, "users.csv"))
	assert.Equal(t, "/opt/splunk/etc/apps/search/lookups", lookups.dest)
	assert.NoError(t, sum.LookupErr)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	stack := newFakeStack()
	coord, _ := setup(t, stack, nil)

	_, err := coord.Run(context.Background())
	require.NoError(t, err)
	sum, err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 4, stack.eventsByIdx["web"])
}

func TestRunIndexFailureIsFatal(t *testing.T) {
	stack := newFakeStack()
	stack.failIndex = "app"
	coord, _ := setup(t, stack, nil)

	sum, err := coord.Run(context.Background())
	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "index app", perr.Step)
	assert.Empty(t, sum.Files)
	assert.Empty(t, stack.eventsByIdx)
}

func TestRunLookupFailureIsNotFatal(t *testing.T) {
	stack := newFakeStack()
	lookups := &fakeLookups{err: assert.AnError}
	coord, _ := setup(t, stack, lookups)

	sum, err := coord.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, sum.LookupErr, assert.AnError)
	assert.Equal(t, 3, sum.Succeeded)
}

func TestRunCancelled(t *testing.T) {
	coord, _ := setup(t, newFakeStack(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Run(ctx)
	require.Error(t, err)
}
