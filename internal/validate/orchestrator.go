// Package validate 는 provision → generate → load → verify 파이프라인을
// 검증기가 100% 통과를 보고할 때까지(최대 MaxAttempts 회) 반복한다.
package validate

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"course-ingest/internal/metrics"
	"course-ingest/internal/model"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrBudgetExhausted 는 모든 시도가 끝났는데도 100% 에 도달하지 못한 경우.
var ErrBudgetExhausted = errors.New("validation failed: attempt budget exhausted")

// PerfectPassRate 이상이어야 시도 성공으로 본다.
const PerfectPassRate = 100.0

// Stage 는 한 시도 안의 단계.
type Stage int

const (
	StageProvision Stage = iota
	StageGenerate
	StageLoad
	StageVerify
)

func (s Stage) String() string {
	switch s {
	case StageProvision:
		return "PROVISION"
	case StageGenerate:
		return "GENERATE"
	case StageLoad:
		return "LOAD"
	case StageVerify:
		return "VERIFY"
	default:
		return "UNKNOWN"
	}
}

// Outcome 은 단계 하나의 결과.
// Report 는 VERIFY 단계가 성공했을 때만 채워진다.
type Outcome struct {
	Stage  Stage
	OK     bool
	Err    error
	Report *model.VerifierReport
}

// Stages 는 단계 전이 구현. 기본 구현은 DefaultStages.
type Stages interface {
	Provision(ctx context.Context) error
	Generate(ctx context.Context) error
	Load(ctx context.Context) error
	Verify(ctx context.Context) (*model.VerifierReport, error)
	// Cleanup 은 다음 시도를 깨끗한 상태에서 시작하도록 정리한다.
	Cleanup(ctx context.Context) error
}

// Archiver 는 완성된 리포트를 외부 저장소에 보관한다 (worker.S3Uploader 가 만족).
type Archiver interface {
	Archive(ctx context.Context, name string, body []byte) (string, error)
}

// Options 는 루프 구성값.
type Options struct {
	MaxAttempts int
	IndexWait   time.Duration // LOAD 후 VERIFY 전 대기
	RetryDelay  time.Duration // 실패한 시도 후 Cleanup 전 대기
	ReportDir   string
	Out         io.Writer        // 요약 출력 (nil 이면 stdout)
	Now         func() time.Time // nil 이면 time.Now
}

// Orchestrator
//
// 시도 하나는 첫 번째로 실패한 단계에서 끝난다. 실패 단계와 에러는
// attempt log 에 남고, 남은 시도가 있으면 RetryDelay → Cleanup 후 다시 시작한다.
// ctx 취소는 단계 사이와 시도 사이에서 확인하며, 그 경우에도 지금까지의
// attempt log 로 리포트를 쓴다.
type Orchestrator struct {
	stages   Stages
	opts     Options
	archiver Archiver
	metrics  *metrics.Metrics
}

// NewOrchestrator 를 만든다. archiver 는 nil 이어도 된다.
func NewOrchestrator(stages Stages, opts Options, archiver Archiver, m *metrics.Metrics) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.ReportDir == "" {
		opts.ReportDir = "."
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.New()
	}
	return &Orchestrator{stages: stages, opts: opts, archiver: archiver, metrics: m}
}

// Result 는 Run 의 결과.
type Result struct {
	Report     model.ValidationReport
	ReportPath string
	ArchiveURI string
}

// Run 은 재시도 루프를 끝까지 수행하고 리포트를 저장한다.
//
// 반환 에러:
//   - nil: 어떤 시도에서 100% 통과
//   - ErrBudgetExhausted: 모든 시도 실패
//   - ctx.Err(): 중간에 취소됨
//   - 리포트 저장 실패
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	started := o.opts.Now()
	runID := ulid.Make().String()

	log.Info().
		Str("run_id", runID).
		Int("max_attempts", o.opts.MaxAttempts).
		Msg("validation run started")

	// 이전 실행이 남긴 컨테이너를 먼저 치운다
	if err := o.stages.Cleanup(ctx); err != nil {
		log.Warn().Err(err).Msg("initial cleanup failed")
	}

	var attempts []model.Attempt
	var success bool

	for n := 1; n <= o.opts.MaxAttempts; n++ {
		if ctx.Err() != nil {
			break
		}

		log.Info().Int("attempt", n).Int("of", o.opts.MaxAttempts).Msg("attempt started")
		a := o.runAttempt(ctx, n)
		attempts = append(attempts, a)
		atomic.AddInt64(&o.metrics.AttemptsTotal, 1)

		if a.Success {
			success = true
			log.Info().Int("attempt", n).Float64("pass_rate", a.PassRate).Msg("✓ all tests passed")
			break
		}
		logAttemptFailure(a)

		if n == o.opts.MaxAttempts || ctx.Err() != nil {
			break
		}

		log.Info().Dur("delay", o.opts.RetryDelay).Msg("retrying after cleanup")
		if err := sleepCtx(ctx, o.opts.RetryDelay); err != nil {
			break
		}
		if err := o.stages.Cleanup(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", n).Msg("cleanup failed")
		}
	}

	rep := buildReport(runID, started, o.opts.Now(), o.opts.MaxAttempts, attempts, success)
	res := Result{Report: rep}

	// 취소된 ctx 로는 쓰기/업로드가 안 되므로 분리한다
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	path, body, err := writeReport(o.opts.ReportDir, rep)
	if err != nil {
		return res, err
	}
	res.ReportPath = path
	log.Info().Str("path", path).Msg("validation report written")

	if o.archiver != nil {
		uri, err := o.archiver.Archive(wctx, reportFilename(rep.StartedAt), body)
		if err != nil {
			log.Warn().Err(err).Msg("report archive failed")
		} else {
			res.ArchiveURI = uri
			log.Info().Str("uri", uri).Msg("✓ report archived")
		}
	}

	printSummary(o.opts.Out, rep)

	switch {
	case success:
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		return res, ErrBudgetExhausted
	}
}

// runAttempt 는 시도 하나를 수행해서 attempt log 항목을 만든다.
func (o *Orchestrator) runAttempt(ctx context.Context, n int) model.Attempt {
	a := model.Attempt{Attempt: n, Timestamp: o.opts.Now()}

	out := o.advance(ctx)
	if !out.OK {
		a.FailedStage = out.Stage.String()
		if out.Err != nil {
			a.Error = out.Err.Error()
		}
		return a
	}

	a.Data = out.Report
	a.PassRate = out.Report.OverallPassRate
	a.Success = a.PassRate >= PerfectPassRate
	return a
}

// advance 는 단계를 순서대로 실행하고 마지막(또는 실패한) 단계의 Outcome 을 돌려준다.
func (o *Orchestrator) advance(ctx context.Context) Outcome {
	steps := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageProvision, o.stages.Provision},
		{StageGenerate, o.stages.Generate},
		{StageLoad, o.stages.Load},
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return Outcome{Stage: st.stage, Err: err}
		}
		log.Info().Str("stage", st.stage.String()).Msg("stage started")
		if err := st.run(ctx); err != nil {
			log.Error().Err(err).Str("stage", st.stage.String()).Msg("✗ stage failed")
			return Outcome{Stage: st.stage, Err: err}
		}
		log.Info().Str("stage", st.stage.String()).Msg("✓ stage completed")
	}

	// 적재된 이벤트가 검색 가능해질 때까지 대기
	if o.opts.IndexWait > 0 {
		log.Info().Dur("wait", o.opts.IndexWait).Msg("waiting for indexing")
	}
	if err := sleepCtx(ctx, o.opts.IndexWait); err != nil {
		return Outcome{Stage: StageVerify, Err: err}
	}

	log.Info().Str("stage", StageVerify.String()).Msg("stage started")
	rep, err := o.stages.Verify(ctx)
	if err == nil && rep == nil {
		err = errors.New("verifier produced no report")
	}
	if err != nil {
		log.Error().Err(err).Str("stage", StageVerify.String()).Msg("✗ stage failed")
		return Outcome{Stage: StageVerify, Err: err}
	}
	log.Info().
		Str("stage", StageVerify.String()).
		Float64("pass_rate", rep.OverallPassRate).
		Msg("✓ stage completed")
	return Outcome{Stage: StageVerify, OK: true, Report: rep}
}

func logAttemptFailure(a model.Attempt) {
	ev := log.Warn().Int("attempt", a.Attempt)
	if a.FailedStage != "" {
		ev.Str("stage", a.FailedStage).Str("error", a.Error).Msg("attempt failed")
		return
	}
	ev.Float64("pass_rate", a.PassRate).Msg("attempt below full pass rate")
}

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
