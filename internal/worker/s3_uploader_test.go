package worker

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"course-ingest/internal/config"
	"course-ingest/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	failures int
	calls    int
	keys     []string
	bodies   []string
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("slow down")
	}
	b, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, string(b))
	return &s3.PutObjectOutput{}, nil
}

func testS3Config() config.Config {
	return config.Config{
		ReportBucket: "reports",
		ReportPrefix: "validation",
		S3Timeout:    time.Second,
		S3AppRetries: 3,
	}
}

func TestArchiveRetriesThenSucceeds(t *testing.T) {
	fake := &fakePutter{failures: 2}
	m := metrics.New()
	u := newS3Uploader(testS3Config(), m, fake)

	uri, err := u.Archive(context.Background(), "validation_report_20240101_000000.json", []byte(`{"ok":true}`))
	require.NoError(t, err)

	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, int64(2), m.S3PutErrorsTotal)
	assert.Equal(t, int64(1), m.ReportUploadsTotal)
	require.Len(t, fake.keys, 1)
	assert.True(t, strings.HasPrefix(fake.keys[0], "validation/dt="))
	assert.True(t, strings.HasSuffix(fake.keys[0], "/validation_report_20240101_000000.json"))
	assert.Equal(t, "s3://reports/"+fake.keys[0], uri)
	assert.Equal(t, `{"ok":true}`, fake.bodies[0])
}

func TestArchiveGivesUp(t *testing.T) {
	fake := &fakePutter{failures: 10}
	m := metrics.New()
	u := newS3Uploader(testS3Config(), m, fake)

	_, err := u.Archive(context.Background(), "r.json", []byte("{}"))
	require.Error(t, err)
	assert.Equal(t, 3, fake.calls)
	assert.Zero(t, m.ReportUploadsTotal)
}
