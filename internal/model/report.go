// internal/model/report.go
package model

import "time"

// LabResult 는 검증기 리포트의 그룹(lab)별 집계.
type LabResult struct {
	LabNumber  int     `json:"lab_number"`
	LabName    string  `json:"lab_name"`
	TotalTests int     `json:"total_tests"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	PassRate   float64 `json:"pass_rate"`
}

// VerifierReport 는 외부 테스트 스위트가 남기는 JSON 리포트.
// 오케스트레이터는 OverallPassRate 만으로 재시도 여부를 결정한다.
type VerifierReport struct {
	Timestamp       string      `json:"timestamp,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	TotalLabs       int         `json:"total_labs"`
	TotalTests      int         `json:"total_tests"`
	TotalPassed     int         `json:"total_passed"`
	TotalFailed     int         `json:"total_failed"`
	OverallPassRate float64     `json:"overall_pass_rate"`
	LabResults      []LabResult `json:"lab_results"`
}

// Attempt
// ------------------------------------------------------------
// 전체 파이프라인 1회 시도의 결과. attempt log 에 append 만 되고
// 생성 이후에는 수정하지 않는다.
type Attempt struct {
	Attempt     int             `json:"attempt"`
	Timestamp   time.Time       `json:"timestamp"`
	Success     bool            `json:"success"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Error       string          `json:"error,omitempty"`
	PassRate    float64         `json:"pass_rate"`
	Data        *VerifierReport `json:"data"`
}

// ValidationReport 는 재시도 루프 종료 후 한 번 생성되어 파일로 저장된다.
type ValidationReport struct {
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"max_attempts"`
	FinalSuccess  bool      `json:"final_success"`
	FinalPassRate float64   `json:"final_pass_rate"`
	Results       []Attempt `json:"results"`
}
