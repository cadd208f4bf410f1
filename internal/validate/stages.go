package validate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"course-ingest/internal/ingest"
	"course-ingest/internal/model"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// 검증기 리포트 파일 패턴
const verifierReportGlob = "test_results_*.json"

// Provisioner 는 적재 대상 인스턴스 수명주기 (splunk.Docker 가 만족).
type Provisioner interface {
	Ensure(ctx context.Context) error
	Remove(ctx context.Context) error
}

// Loader 는 적재 1회 (ingest.Coordinator 가 만족).
type Loader interface {
	Run(ctx context.Context) (ingest.Summary, error)
}

// Command 는 외부 명령 하나. Dir 이 비어있으면 현재 디렉토리.
type Command struct {
	Args []string
	Dir  string
}

// StageConfig 는 DefaultStages 구성값.
type StageConfig struct {
	Generate    Command
	Verify      Command
	DataDir     string
	ReportsDir  string // 검증기가 test_results_*.json 을 쓰는 곳
	PreLoadWait time.Duration
}

// DefaultStages
//
//   - PROVISION: 컨테이너 Ensure
//   - GENERATE: DataDir 가 비어있을 때만 생성 명령 실행
//   - LOAD: PreLoadWait 후 적재 1회, 파일 하나라도 실패하면 단계 실패
//   - VERIFY: 테스트 명령 실행 후 단계 시작 이후에 쓰인 최신 리포트를 읽는다
//   - Cleanup: 컨테이너 제거
type DefaultStages struct {
	prov   Provisioner
	loader Loader
	cfg    StageConfig
	now    func() time.Time
}

func NewDefaultStages(prov Provisioner, loader Loader, cfg StageConfig) *DefaultStages {
	return &DefaultStages{prov: prov, loader: loader, cfg: cfg, now: time.Now}
}

func (s *DefaultStages) Provision(ctx context.Context) error {
	return s.prov.Ensure(ctx)
}

func (s *DefaultStages) Generate(ctx context.Context) error {
	if n := countEntries(s.cfg.DataDir); n > 0 {
		log.Info().Str("dir", s.cfg.DataDir).Int("entries", n).Msg("data already present, skipping generation")
		return nil
	}
	if err := runCommand(ctx, "generate", s.cfg.Generate); err != nil {
		return err
	}
	if countEntries(s.cfg.DataDir) == 0 {
		return errors.Errorf("generator left %s empty", s.cfg.DataDir)
	}
	return nil
}

func (s *DefaultStages) Load(ctx context.Context) error {
	if s.cfg.PreLoadWait > 0 {
		log.Info().Dur("wait", s.cfg.PreLoadWait).Msg("waiting before load")
	}
	if err := sleepCtx(ctx, s.cfg.PreLoadWait); err != nil {
		return err
	}

	sum, err := s.loader.Run(ctx)
	if err != nil {
		return err
	}
	return sum.Err()
}

func (s *DefaultStages) Verify(ctx context.Context) (*model.VerifierReport, error) {
	// mtime 해상도가 초 단위인 파일시스템이 있어서 초 단위로 자른다
	start := s.now().Truncate(time.Second)

	runErr := runCommand(ctx, "verify", s.cfg.Verify)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// 테스트 실패가 있으면 검증기는 non-zero 로 끝나지만 리포트는 남긴다
	rep, err := latestVerifierReport(s.cfg.ReportsDir, start)
	if err != nil {
		if runErr != nil {
			return nil, errors.Wrap(runErr, err.Error())
		}
		return nil, err
	}
	if runErr != nil {
		log.Warn().Err(runErr).Msg("verifier exited with error, using its report")
	}
	return rep, nil
}

func (s *DefaultStages) Cleanup(ctx context.Context) error {
	return s.prov.Remove(ctx)
}

// runCommand 는 외부 명령을 실행하고 출력을 로그로 흘린다.
func runCommand(ctx context.Context, name string, c Command) error {
	if len(c.Args) == 0 {
		return errors.Errorf("%s: no command configured", name)
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	w := log.Logger.With().Str("cmd", name).Logger()
	cmd.Stdout = w
	cmd.Stderr = w

	log.Info().Strs("args", c.Args).Str("dir", c.Dir).Msgf("running %s command", name)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s command", name)
	}
	return nil
}

// latestVerifierReport 는 dir 에서 since 이후에 수정된 가장 최신 리포트를 읽는다.
func latestVerifierReport(dir string, since time.Time) (*model.VerifierReport, error) {
	paths, err := filepath.Glob(filepath.Join(dir, verifierReportGlob))
	if err != nil {
		return nil, errors.Wrap(err, "glob verifier reports")
	}

	type cand struct {
		path string
		mod  time.Time
	}
	var cands []cand
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.ModTime().Before(since) {
			continue
		}
		cands = append(cands, cand{p, info.ModTime()})
	}
	if len(cands) == 0 {
		return nil, errors.Errorf("no verifier report in %s since %s", dir, since.Format(time.RFC3339))
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod.Equal(cands[j].mod) {
			return cands[i].path > cands[j].path
		}
		return cands[i].mod.After(cands[j].mod)
	})

	data, err := os.ReadFile(cands[0].path)
	if err != nil {
		return nil, errors.Wrap(err, "read verifier report")
	}
	var rep model.VerifierReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, errors.Wrapf(err, "decode verifier report %s", filepath.Base(cands[0].path))
	}
	log.Info().Str("report", filepath.Base(cands[0].path)).Msg("verifier report loaded")
	return &rep, nil
}

func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}
