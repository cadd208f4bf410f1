package parser

import (
	"fmt"
	"testing"

	"course-ingest/internal/model"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixedNow = int64(1760760000)

func fixedClock() int64 { return fixedNow }

func TestCombinedLogRoundTrip(t *testing.T) {
	tests := []struct {
		ip, user, method, path string
		status, bytes          int64
		referer, agent         string
		duration               int64
	}{
		{"10.1.2.3", "user0042", "GET", "/api/users", 200, 5120, "-", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36", 87},
		{"203.0.113.9", "-", "DELETE", "/cart", 503, 200, "https://example.com/", "curl/8.0", 1999},
	}

	parse := CombinedLog(fixedClock)
	for _, tt := range tests {
		line := fmt.Sprintf(`%s - %s [18/Oct/2025:04:14:34 +0000] "%s %s HTTP/1.1" %d %d "%s" "%s" %dms`,
			tt.ip, tt.user, tt.method, tt.path, tt.status, tt.bytes, tt.referer, tt.agent, tt.duration)

		rec, err := parse(line)
		require.NoError(t, err, line)

		assert.Equal(t, fixedNow, rec.Time)
		assert.Equal(t, tt.ip, rec.Fields["src_ip"])
		assert.Equal(t, tt.method, rec.Fields["method"])
		assert.Equal(t, tt.path, rec.Fields["url"])
		assert.Equal(t, tt.status, rec.Fields["status"])
		assert.Equal(t, tt.bytes, rec.Fields["bytes"])
		assert.Equal(t, tt.agent, rec.Fields["user_agent"])
		assert.Equal(t, tt.duration, rec.Fields["response_time"])

		if tt.user == "-" {
			assert.Nil(t, rec.Fields["user"])
		} else {
			assert.Equal(t, tt.user, rec.Fields["user"])
		}
		if tt.referer == "-" {
			assert.Nil(t, rec.Fields["referer"])
		} else {
			assert.Equal(t, tt.referer, rec.Fields["referer"])
		}
		assert.NotContains(t, rec.Fields, model.TimeField)
	}
}

func TestCombinedLogRejectsMalformed(t *testing.T) {
	parse := CombinedLog(fixedClock)
	bad := []string{
		`1.2.3.4 - - [18/Oct/2025:04:14:34 +0000] "GET /home HTTP/1.1 200 512 "-" "ua" 10ms`,   // missing quote
		`1.2.3.4 - - [18/Oct/2025:04:14:34 +0000] "GET /home HTTP/1.1" OK 512 "-" "ua" 10ms`,   // status
		`1.2.3.4 - - [18/Oct/2025:04:14:34 +0000] "GET /home HTTP/1.1" 200 512 "-" "ua" 10sec`, // unit
		``,
	}
	for _, line := range bad {
		_, err := parse(line)
		require.Error(t, err, line)
		assert.True(t, errors.Is(err, ErrParse), line)
	}
}

func TestKeyValue(t *testing.T) {
	parse := KeyValue(fixedClock)

	rec, err := parse(`2025-01-01 00:00:00 action=login user=alice src_ip=1.2.3.4 status=success session_id=sess_1 reason="-"`)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, rec.Time)
	assert.Equal(t, map[string]any{
		"action":     "login",
		"user":       "alice",
		"src_ip":     "1.2.3.4",
		"status":     "success",
		"session_id": "sess_1",
		"reason":     nil,
	}, rec.Fields)
}

func TestKeyValueCoercion(t *testing.T) {
	parse := KeyValue(fixedClock)

	rec, err := parse(`2025-10-18 04:14:34 host=app-server-01 level=ERROR count=42 amount=19.99 ` +
		`message="Connection timeout \"db\"" user_id=- garbage _time=123 version=1.2.3`)
	require.NoError(t, err)

	assert.Equal(t, "app-server-01", rec.Fields["host"])
	assert.Equal(t, int64(42), rec.Fields["count"])
	assert.Equal(t, 19.99, rec.Fields["amount"])
	assert.Equal(t, `Connection timeout "db"`, rec.Fields["message"])
	assert.Nil(t, rec.Fields["user_id"])
	assert.Contains(t, rec.Fields, "user_id")
	assert.Equal(t, "1.2.3", rec.Fields["version"])
	assert.NotContains(t, rec.Fields, "garbage")
	assert.NotContains(t, rec.Fields, model.TimeField)
	assert.Equal(t, fixedNow, rec.Time)
}

func TestKeyValueBareQuote(t *testing.T) {
	parse := KeyValue(fixedClock)

	rec, err := parse(`2025-10-18 04:14:34 note=" level=WARN`)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Fields["note"])
	assert.Equal(t, "WARN", rec.Fields["level"])
}

func TestKeyValueRequiresTimestamp(t *testing.T) {
	parse := KeyValue(fixedClock)
	for _, line := range []string{
		`action=login user=alice`,
		`2025/01/01 00:00:00 action=login`,
		`2025-01-01 00:00:00`,
	} {
		_, err := parse(line)
		assert.True(t, errors.Is(err, ErrParse), line)
	}
}

func TestJSONLines(t *testing.T) {
	parse := JSONLines(fixedClock)

	rec, err := parse(`{"timestamp":"2025-10-18T04:14:34","_time":1,"endpoint":"/api/v1/users","status_code":200,"latency":12.5,"ratio":3.0,"client":{"retries":2},"user":null}`)
	require.NoError(t, err)

	assert.Equal(t, fixedNow, rec.Time)
	assert.NotContains(t, rec.Fields, model.TimeField)
	assert.Equal(t, "/api/v1/users", rec.Fields["endpoint"])
	assert.Equal(t, int64(200), rec.Fields["status_code"])
	assert.Equal(t, 12.5, rec.Fields["latency"])
	assert.Equal(t, 3.0, rec.Fields["ratio"])
	assert.Equal(t, map[string]any{"retries": int64(2)}, rec.Fields["client"])
	assert.Contains(t, rec.Fields, "user")
	assert.Nil(t, rec.Fields["user"])
}

func TestJSONLinesFailures(t *testing.T) {
	parse := JSONLines(fixedClock)
	for _, line := range []string{
		`{"endpoint":"/api/v1/users","status_code":`,
		`[1,2,3]`,
		`null`,
		`{"a":1} {"b":2}`,
		`not json`,
	} {
		_, err := parse(line)
		require.Error(t, err, line)
		assert.True(t, errors.Is(err, ErrParse), line)
	}
}

func TestTimestampIsIngestionTime(t *testing.T) {
	calls := int64(0)
	now := func() int64 {
		calls++
		return 1000 + calls
	}
	reg := NewRegistry(now)

	lines := map[model.Format]string{
		model.CombinedLog: `1.2.3.4 - - [01/Jan/1999:00:00:00 +0000] "GET / HTTP/1.1" 200 1 "-" "ua" 1ms`,
		model.KeyValue:    `1999-01-01 00:00:00 a=b`,
		model.JSONLines:   `{"timestamp":"1999-01-01T00:00:00","_time":915148800}`,
	}
	for f, line := range lines {
		p, err := reg.Lookup(f)
		require.NoError(t, err)

		before := calls
		rec, err := p(line)
		require.NoError(t, err, f.String())
		assert.Equal(t, 1000+before+1, rec.Time, f.String())
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := map[string]model.Format{
		"web_access.log":                model.CombinedLog,
		"data/web_access.log":           model.CombinedLog,
		"api.log":                       model.JSONLines,
		"/srv/api/application.log":      model.KeyValue,
		"/data/api_dump/security.log":   model.KeyValue,
		"/data/api_dump/web_access.log": model.CombinedLog,
		"auth.log":                      model.KeyValue,
		"sales.log":                     model.KeyValue,
		"whatever":                      model.KeyValue,
	}
	for name, want := range tests {
		assert.Equal(t, want, DefaultClassifier(name), name)
	}
}

func TestDetectWithCustomClassifier(t *testing.T) {
	reg := NewRegistry(fixedClock)

	f, p, err := Detect("anything.log", func(string) model.Format { return model.JSONLines }, reg)
	require.NoError(t, err)
	assert.Equal(t, model.JSONLines, f)

	_, err = p(`{"a":1}`)
	assert.NoError(t, err)

	_, _, err = Detect("x", func(string) model.Format { return model.Format(99) }, reg)
	assert.Error(t, err)
}
