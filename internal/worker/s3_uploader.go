// internal/worker/s3_uploader.go
package worker

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"course-ingest/internal/config"
	"course-ingest/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// putObjectAPI 는 S3Uploader 가 쓰는 s3.Client 의 부분 집합.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader 는 검증 리포트(validation_report_*.json)를 S3 에 보관한다.
//   - key: <ReportPrefix>/dt=YYYY-MM-DD/hr=HH/<name>
//   - 시도당 timeout + app 레벨 retry/backoff (SDK retry 는 0)
type S3Uploader struct {
	bucket  string
	prefix  string
	timeout time.Duration
	retries int
	metrics *metrics.Metrics
	client  putObjectAPI
}

// NewS3Uploader 는 AWS SDK Config 를 로드하고 S3 client 를 만든다.
func NewS3Uploader(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*S3Uploader, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})

	return newS3Uploader(cfg, m, client), nil
}

func newS3Uploader(cfg config.Config, m *metrics.Metrics, client putObjectAPI) *S3Uploader {
	retries := cfg.S3AppRetries
	if retries < 1 {
		retries = 1
	}
	return &S3Uploader{
		bucket:  cfg.ReportBucket,
		prefix:  cfg.ReportPrefix,
		timeout: cfg.S3Timeout,
		retries: retries,
		metrics: m,
		client:  client,
	}
}

// Archive 는 리포트 body 를 업로드하고 s3:// URI 를 반환한다.
func (u *S3Uploader) Archive(ctx context.Context, name string, body []byte) (string, error) {
	key := archiveKey(u.prefix, name)
	if err := u.UploadBytesWithRetryCtx(ctx, key, body); err != nil {
		return "", errors.Wrapf(err, "upload s3://%s/%s", u.bucket, key)
	}
	atomic.AddInt64(&u.metrics.ReportUploadsTotal, 1)
	return "s3://" + u.bucket + "/" + key, nil
}

// UploadBytesWithRetryCtx
// -----------------------
// 메모리에 있는 바이트 배열을 S3로 업로드한다.
// - retry + exponential backoff (최대 2초)
// - ctx.Done() 시 즉시 중단
//
// body는 매 재시도마다 reader를 새로 만들어야 하므로 bytes.NewReader 사용.
func (u *S3Uploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := u.putObject(ctx, key, body); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)
		}

		if attempt == u.retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject 는 PutObject 1회 호출. retry 는 caller 가 제어한다.
func (u *S3Uploader) putObject(ctx context.Context, key string, body []byte) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	return err
}
