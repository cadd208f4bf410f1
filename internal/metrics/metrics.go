package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 적재/검증 실행 상태를 나타내는 카운터 모음이다.
// 실행 종료 시 String() 결과를 로그로 남긴다.
type Metrics struct {
	// ======================
	// HEC 전송 지표
	// ======================

	// RecordsSentTotal
	// - HEC 가 200/201 로 수락한 배치에 포함된 "레코드 수"의 합.
	RecordsSentTotal int64

	// LinesSkippedTotal
	// - 파싱에 실패해서 건너뛴 라인 수. 파일 실패 여부와는 무관하다.
	LinesSkippedTotal int64

	// BatchesSentTotal / BatchErrorsTotal
	// - 성공한 배치 POST 수 / 실패(non-2xx 또는 전송 오류)한 배치 수.
	// - 배치 실패는 해당 파일의 적재 실패로 이어진다.
	BatchesSentTotal int64
	BatchErrorsTotal int64

	// ======================
	// 파일 단위 지표
	// ======================

	FilesLoadedTotal int64
	FilesFailedTotal int64

	// ======================
	// dead-letter 스풀 지표
	// ======================

	// DeadLetterBatchesTotal
	// - 전송 실패 후 로컬 스풀에 저장된 배치 수.
	DeadLetterBatchesTotal int64

	// DeadLetterDroppedTotal
	// - 용량 제한으로 저장조차 못 하고 버린 배치 수.
	DeadLetterDroppedTotal int64

	// DeadLetterExpiredTotal
	// - TTL 또는 용량 정책으로 삭제된 스풀 파일 수.
	DeadLetterExpiredTotal int64

	// DeadLetterFilesCurrent / DeadLetterSizeBytes
	// - 현재 스풀 디렉토리의 파일 수 / 총 바이트 (gauge).
	DeadLetterFilesCurrent int64
	DeadLetterSizeBytes    int64

	// ======================
	// 검증 루프 지표
	// ======================

	AttemptsTotal      int64
	ReportUploadsTotal int64
	S3PutErrorsTotal   int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "records_sent_total=%d\n", atomic.LoadInt64(&m.RecordsSentTotal))
	fmt.Fprintf(&sb, "lines_skipped_total=%d\n", atomic.LoadInt64(&m.LinesSkippedTotal))
	fmt.Fprintf(&sb, "batches_sent_total=%d\n", atomic.LoadInt64(&m.BatchesSentTotal))
	fmt.Fprintf(&sb, "batch_errors_total=%d\n", atomic.LoadInt64(&m.BatchErrorsTotal))

	fmt.Fprintf(&sb, "files_loaded_total=%d\n", atomic.LoadInt64(&m.FilesLoadedTotal))
	fmt.Fprintf(&sb, "files_failed_total=%d\n", atomic.LoadInt64(&m.FilesFailedTotal))

	fmt.Fprintf(&sb, "dead_letter_batches_total=%d\n", atomic.LoadInt64(&m.DeadLetterBatchesTotal))
	fmt.Fprintf(&sb, "dead_letter_dropped_total=%d\n", atomic.LoadInt64(&m.DeadLetterDroppedTotal))
	fmt.Fprintf(&sb, "dead_letter_expired_total=%d\n", atomic.LoadInt64(&m.DeadLetterExpiredTotal))
	fmt.Fprintf(&sb, "dead_letter_files_current=%d\n", atomic.LoadInt64(&m.DeadLetterFilesCurrent))
	fmt.Fprintf(&sb, "dead_letter_size_bytes=%d\n", atomic.LoadInt64(&m.DeadLetterSizeBytes))

	fmt.Fprintf(&sb, "attempts_total=%d\n", atomic.LoadInt64(&m.AttemptsTotal))
	fmt.Fprintf(&sb, "report_uploads_total=%d\n", atomic.LoadInt64(&m.ReportUploadsTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))

	return sb.String()
}

// Fields 는 로그 필드로 붙이기 쉬운 map 형태의 스냅샷.
func (m *Metrics) Fields() map[string]any {
	out := make(map[string]any)
	for _, line := range strings.Split(strings.TrimSpace(m.String()), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			out[k] = v
		}
	}
	return out
}
