package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"course-ingest/internal/model"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

func buildReport(runID string, started, finished time.Time, max int, attempts []model.Attempt, success bool) model.ValidationReport {
	rep := model.ValidationReport{
		RunID:        runID,
		Timestamp:    finished,
		StartedAt:    started,
		FinishedAt:   finished,
		Attempts:     len(attempts),
		MaxAttempts:  max,
		FinalSuccess: success,
		Results:      attempts,
	}
	if rep.Results == nil {
		rep.Results = []model.Attempt{}
	}
	if n := len(attempts); n > 0 {
		rep.FinalPassRate = attempts[n-1].PassRate
	}
	return rep
}

// reportFilename 은 validation_report_YYYYMMDD_HHMMSS.json
func reportFilename(t time.Time) string {
	return "validation_report_" + t.Format("20060102_150405") + ".json"
}

// writeReport 는 리포트를 들여쓰기 된 JSON 으로 dir 에 쓴다.
func writeReport(dir string, rep model.ValidationReport) (string, []byte, error) {
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", nil, errors.Wrap(err, "marshal validation report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, errors.Wrap(err, "create report dir")
	}

	path := filepath.Join(dir, reportFilename(rep.StartedAt))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", nil, errors.Wrap(err, "write validation report")
	}
	return path, body, nil
}

// printSummary 는 터미널용 결과 요약. 성공이면 lab 별 표를 함께 출력한다.
func printSummary(out io.Writer, rep model.ValidationReport) {
	bar := strings.Repeat("=", 60)
	fmt.Fprintln(out, bar)

	if !rep.FinalSuccess {
		fmt.Fprintf(out, "VALIDATION FAILED after %d attempt(s)\n", rep.Attempts)
		fmt.Fprintf(out, "final pass rate: %.1f%%\n", rep.FinalPassRate)
		for _, a := range rep.Results {
			if a.FailedStage != "" {
				fmt.Fprintf(out, "  attempt %d: failed at %s: %s\n", a.Attempt, a.FailedStage, a.Error)
			} else {
				fmt.Fprintf(out, "  attempt %d: pass rate %.1f%%\n", a.Attempt, a.PassRate)
			}
		}
		fmt.Fprintln(out, bar)
		return
	}

	fmt.Fprintf(out, "VALIDATION PASSED on attempt %d of %d\n", rep.Attempts, rep.MaxAttempts)
	last := rep.Results[len(rep.Results)-1]
	if last.Data != nil {
		d := last.Data
		fmt.Fprintf(out, "labs: %d  tests: %d  passed: %d  failed: %d\n",
			d.TotalLabs, d.TotalTests, d.TotalPassed, d.TotalFailed)
		fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
		fmt.Fprintln(w, "LAB\tNAME\tPASSED\tTOTAL\tRATE")
		for _, lab := range d.LabResults {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.1f%%\n",
				lab.LabNumber, lab.LabName, lab.Passed, lab.TotalTests, lab.PassRate)
		}
		_ = w.Flush()
	}
	fmt.Fprintln(out, bar)
}
