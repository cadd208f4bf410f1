package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "course-data", cfg.HostTag)
	assert.Equal(t, "splunk-course", cfg.Container)
	assert.Equal(t, 30*time.Second, cfg.IndexWait)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPLUNK_HEC_URL", "https://splunk:8088/")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("HEC_GZIP", "true")
	t.Setenv("INDEX_WAIT", "1s")
	t.Setenv("VERIFY_CMD", "go test ./course_tests/...")

	cfg := Load()
	assert.Equal(t, "https://splunk:8088", cfg.SplunkHECURL)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.True(t, cfg.HECGzip)
	assert.Equal(t, time.Second, cfg.IndexWait)
	assert.Equal(t, []string{"go", "test", "./course_tests/..."}, cfg.VerifyCmd)
}
