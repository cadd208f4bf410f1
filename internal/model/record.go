// internal/model/record.go
package model

import "fmt"

// Record
// ------------------------------------------------------------
// 파서가 만들어내는 단일 정규화(canonical) 이벤트.
// Parser → Transmitter → HEC 전송까지 그대로 전달된다.
//
// Time 은 예약된 timestamp 필드(_time)이며, 원본 로그의 시각이 아니라
// 파싱 시점의 ingestion 시각(epoch seconds)이다.
// Fields 값은 int64 / float64 / string / nil 중 하나이다.
// (JSON lines 의 중첩 object/array 는 그대로 유지된다.)
type Record struct {
	Time   int64
	Fields map[string]any
}

// TimeField 는 예약된 timestamp 키. Fields 에는 절대 들어가지 않는다.
const TimeField = "_time"

// Format
// ------------------------------------------------------------
// 소스 파일의 라인 포맷. 새 포맷은 값 하나 + 파서 하나로 추가한다.
type Format int

const (
	KeyValue Format = iota // 기본값
	CombinedLog
	JSONLines
)

func (f Format) String() string {
	switch f {
	case CombinedLog:
		return "combined-log"
	case KeyValue:
		return "key-value"
	case JSONLines:
		return "json-lines"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Token 은 HEC 인증 토큰. 실행(run)당 한 번 발급되어 이후 모든 배치에
// 값으로 전달된다. 생성 이후에는 변경하지 않는다.
type Token string

// Destination 은 레코드가 들어갈 인덱스와 sourcetype 이다.
type Destination struct {
	Index      string
	SourceType string
}

// HECEvent
// ------------------------------------------------------------
// HEC /services/collector/event 로 전송되는 한 줄(JSON object).
// 배치는 이 객체들을 줄바꿈으로 이어 붙인 body 이다.
type HECEvent struct {
	Time       int64          `json:"time"`
	Index      string         `json:"index"`
	SourceType string         `json:"sourcetype"`
	Host       string         `json:"host"`
	Event      map[string]any `json:"event"`
}
