// Package ingest 는 한 번의 적재(run)를 조율한다:
// 준비 대기 → 인덱스 → HEC 토큰 → 파일별 파싱/전송 → lookup 업로드.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"course-ingest/internal/metrics"
	"course-ingest/internal/model"
	"course-ingest/internal/parser"
	"course-ingest/internal/worker"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProvisioningError 는 준비 대기 / 인덱스 생성 / 토큰 발급 실패.
// run 전체를 중단시키며, 재시도는 바깥 검증 루프의 몫이다.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string { return "provisioning " + e.Step + ": " + e.Err.Error() }
func (e *ProvisioningError) Unwrap() error { return e.Err }

// Admin 은 적재 대상 관리 API (splunk.Client 가 만족).
type Admin interface {
	WaitReady(ctx context.Context) error
	CreateIndex(ctx context.Context, spec model.IndexSpec) (existed bool, err error)
	EnsureToken(ctx context.Context, name string, indexes []string) (model.Token, error)
}

// Sender 는 배치 전송기 (worker.Transmitter 가 만족).
type Sender interface {
	SendLines(ctx context.Context, r io.Reader, parse parser.ParseFunc, dest model.Destination, token model.Token) (worker.Counts, error)
}

// LookupUploader 는 lookup 파일을 대상 파일시스템에 복사한다 (splunk.Docker 가 만족).
type LookupUploader interface {
	CopyFile(ctx context.Context, src, destDir string) error
}

// Options 는 Coordinator 구성값.
type Options struct {
	DataDir     string
	TokenName   string
	IndexSettle time.Duration
	LookupFile  string // DataDir 기준. 비어있으면 업로드 안 함
	LookupDest  string
	Classify    parser.Classifier
	Parsers     parser.Registry
}

// FileResult 는 파일 하나의 적재 결과.
type FileResult struct {
	Spec    model.FileSpec
	Format  model.Format
	Size    int64
	Events  int
	Skipped int
	Batches int
	Err     error
}

func (r FileResult) OK() bool { return r.Err == nil }

// Summary 는 run 하나의 결과.
type Summary struct {
	Token     model.Token
	Indexes   int
	Files     []FileResult
	Succeeded int
	Failed    int
	LookupErr error
}

// Err 는 실패한 파일이 하나라도 있으면 에러를 돌려준다.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return errors.Errorf("%d of %d files failed to load", s.Failed, len(s.Files))
}

// Coordinator
//
// 각 단계는 반복 실행해도 안전하다 (인덱스 409, 기존 토큰 재사용).
// 파일은 하나씩 순서대로 적재하며, 한 파일의 실패가 다른 파일을 막지 않는다.
type Coordinator struct {
	admin    Admin
	sender   Sender
	lookups  LookupUploader
	manifest model.Manifest
	opts     Options
	metrics  *metrics.Metrics
}

func NewCoordinator(admin Admin, sender Sender, lookups LookupUploader, manifest model.Manifest, opts Options, m *metrics.Metrics) *Coordinator {
	if opts.Classify == nil {
		opts.Classify = parser.DefaultClassifier
	}
	if opts.Parsers == nil {
		opts.Parsers = parser.NewRegistry(nil)
	}
	if m == nil {
		m = metrics.New()
	}
	return &Coordinator{
		admin:    admin,
		sender:   sender,
		lookups:  lookups,
		manifest: manifest,
		opts:     opts,
		metrics:  m,
	}
}

// Run 은 적재 1회를 수행한다.
// 에러는 ProvisioningError(또는 ctx 취소)뿐이며, 파일 실패는 Summary 에 담긴다.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	// ------------------------------------------------------------
	// 1) 준비 대기
	// ------------------------------------------------------------
	log.Info().Msg("waiting for splunk to be ready")
	if err := c.admin.WaitReady(ctx); err != nil {
		log.Error().Err(err).Msg("✗ splunk is not ready")
		return sum, &ProvisioningError{Step: "health", Err: err}
	}
	log.Info().Msg("✓ splunk is ready")

	// ------------------------------------------------------------
	// 2) 인덱스
	// ------------------------------------------------------------
	for _, ix := range c.manifest.Indexes {
		existed, err := c.admin.CreateIndex(ctx, ix)
		if err != nil {
			log.Error().Err(err).Str("index", ix.Name).Msg("✗ index creation failed")
			return sum, &ProvisioningError{Step: "index " + ix.Name, Err: err}
		}
		if existed {
			log.Info().Str("index", ix.Name).Msg("index already exists")
		} else {
			log.Info().Str("index", ix.Name).Msg("✓ created index")
		}
		sum.Indexes++
	}
	if err := sleepCtx(ctx, c.opts.IndexSettle); err != nil {
		return sum, err
	}

	// ------------------------------------------------------------
	// 3) HEC 토큰 (run 당 1회, 이후 값으로 전달)
	// ------------------------------------------------------------
	token, err := c.admin.EnsureToken(ctx, c.opts.TokenName, c.manifest.IndexNames())
	if err != nil {
		log.Error().Err(err).Msg("✗ HEC token unavailable")
		return sum, &ProvisioningError{Step: "token", Err: err}
	}
	sum.Token = token

	// ------------------------------------------------------------
	// 4) 파일별 적재
	// ------------------------------------------------------------
	for _, spec := range c.manifest.Files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := c.loadFile(ctx, spec, token)
		sum.Files = append(sum.Files, res)
		if res.OK() {
			sum.Succeeded++
			atomic.AddInt64(&c.metrics.FilesLoadedTotal, 1)
		} else {
			sum.Failed++
			atomic.AddInt64(&c.metrics.FilesFailedTotal, 1)
		}
	}

	// ------------------------------------------------------------
	// 5) lookup 업로드 (이벤트 경로와 무관, 실패해도 run 은 계속)
	// ------------------------------------------------------------
	sum.LookupErr = c.uploadLookup(ctx)

	log.Info().
		Int("indexes", sum.Indexes).
		Int("loaded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("files", len(sum.Files)).
		Msg("data loading summary")

	return sum, nil
}

func (c *Coordinator) loadFile(ctx context.Context, spec model.FileSpec, token model.Token) FileResult {
	res := FileResult{Spec: spec}
	path := filepath.Join(c.opts.DataDir, spec.File)

	format, parse, err := parser.Detect(path, c.opts.Classify, c.opts.Parsers)
	res.Format = format
	if err != nil {
		res.Err = err
		return res
	}

	f, err := os.Open(path)
	if err != nil {
		res.Err = errors.Wrap(err, "open data file")
		log.Error().Str("file", spec.File).Err(err).Msg("✗ file not found")
		return res
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		res.Size = info.Size()
	}
	log.Info().
		Str("file", spec.File).
		Str("format", format.String()).
		Str("size", humanize.Bytes(uint64(res.Size))).
		Msg("loading file")

	counts, err := c.sender.SendLines(ctx, f, parse, spec.Destination(), token)
	res.Events, res.Skipped, res.Batches = counts.Events, counts.Skipped, counts.Batches
	if err != nil {
		res.Err = err
		log.Error().Str("file", spec.File).Int("events", counts.Events).Err(err).Msg("✗ file load failed")
		return res
	}

	ev := log.Info().Str("file", spec.File).Str("index", spec.Index).Int("events", counts.Events)
	if counts.Skipped > 0 {
		ev = ev.Int("skipped", counts.Skipped)
	}
	ev.Msgf("✓ loaded %d events", counts.Events)
	return res
}

func (c *Coordinator) uploadLookup(ctx context.Context) error {
	if c.opts.LookupFile == "" || c.lookups == nil {
		return nil
	}

	path := filepath.Join(c.opts.DataDir, c.opts.LookupFile)
	if _, err := os.Stat(path); err != nil {
		log.Warn().Str("file", path).Msg("✗ lookup file not found")
		return errors.Wrap(err, "lookup file")
	}

	if err := c.lookups.CopyFile(ctx, path, c.opts.LookupDest); err != nil {
		log.Warn().Err(err).Str("lookup", c.opts.LookupFile).Msg("✗ lookup upload failed")
		return err
	}
	log.Info().Str("lookup", c.opts.LookupFile).Msg("✓ uploaded lookup")
	return nil
}

// sleepCtx 는 d 만큼 기다리되 ctx 가 끝나면 즉시 돌아온다.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
