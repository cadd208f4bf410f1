package worker

import (
	"strconv"
	"strings"
	"sync/atomic"

	"course-ingest/internal/clock"
)

// spool 파일명: <unix>_<instance>_<seq6><ext>
//
//	1764721594_laptop_000042.jsonl.gz
//
// 사전순 정렬이 곧 시간순이라 용량 초과 시 앞에서부터 지운다.
var spoolSeq atomic.Uint64

// spoolFilename 은 dead-letter data 파일 이름을 만든다.
func spoolFilename(instanceID string, gz bool) string {
	seq := strconv.FormatUint(spoolSeq.Add(1)%1_000_000, 10)

	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(clock.Unix(), 10))
	sb.WriteByte('_')
	sb.WriteString(instanceID)
	sb.WriteByte('_')
	sb.WriteString(strings.Repeat("0", 6-len(seq)))
	sb.WriteString(seq)
	sb.WriteString(".jsonl")
	if gz {
		sb.WriteString(".gz")
	}
	return sb.String()
}

// archiveKey 는 리포트 보관용 S3 key: <prefix>/dt=YYYY-MM-DD/hr=HH/<name>
func archiveKey(prefix, name string) string {
	parts := []string{"dt=" + clock.DT(), "hr=" + clock.HR(), name}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	return strings.Join(parts, "/")
}
