// Package parser 는 세 가지 로그 라인 포맷을 하나의 model.Record 로 변환한다.
//
// 모든 파서는 순수 함수이며, 원본 라인에 들어있는 시각은 버리고
// 파싱 시점의 ingestion 시각을 Record.Time 에 넣는다.
// (검증 쿼리가 "최근 N시간" 범위로 동작하기 때문)
package parser

import (
	"course-ingest/internal/clock"
	"course-ingest/internal/model"

	"github.com/pkg/errors"
)

// ErrParse 는 한 라인을 해석하지 못했을 때의 sentinel.
// 호출자는 errors.Is(err, ErrParse) 로 판별하고, 해당 라인만 건너뛴다.
var ErrParse = errors.New("unparseable line")

// ParseFunc 는 한 라인을 Record 로 바꾸는 함수. 실패 시 ErrParse 를 감싼 에러.
type ParseFunc func(line string) (model.Record, error)

// Registry 는 Format 별 파서 테이블.
type Registry map[model.Format]ParseFunc

// NewRegistry 는 기본 세 포맷의 파서를 now 시계로 묶어 반환한다.
// now 가 nil 이면 캐시된 wall clock(clock.Unix)을 쓴다.
func NewRegistry(now clock.Func) Registry {
	if now == nil {
		now = clock.Unix
	}
	return Registry{
		model.CombinedLog: CombinedLog(now),
		model.KeyValue:    KeyValue(now),
		model.JSONLines:   JSONLines(now),
	}
}

// Lookup 은 포맷에 해당하는 파서를 반환한다.
func (r Registry) Lookup(f model.Format) (ParseFunc, error) {
	p, ok := r[f]
	if !ok {
		return nil, errors.Errorf("no parser registered for %s", f)
	}
	return p, nil
}

func failf(format string, args ...any) error {
	return errors.Wrapf(ErrParse, format, args...)
}
