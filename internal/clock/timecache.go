// Package clock 은 초 단위로 캐싱된 UTC 시계.
//
// 레코드마다 ingestion 시각을 찍어야 해서(파일당 수십만 라인)
// 라인마다 time.Now() 를 부르지 않고 1초 ticker 가 갱신한 스냅샷을 읽는다.
// HEC time 필드가 초 단위 정수이므로 잃는 정밀도는 없다.
package clock

import (
	"sync/atomic"
	"time"
)

// Func 는 epoch seconds 를 돌려주는 시계. 테스트에서는 고정값을 주입한다.
type Func func() int64

// snapshot 은 한 시점의 파생값 묶음. 통째로 교체되므로 세 값이 서로 어긋나지 않는다.
type snapshot struct {
	unix int64
	dt   string // YYYY-MM-DD
	hr   string // HH
}

var current atomic.Pointer[snapshot]

func init() {
	refresh(time.Now())

	go func() {
		for now := range time.Tick(time.Second) {
			refresh(now)
		}
	}()
}

func refresh(now time.Time) {
	now = now.UTC()
	current.Store(&snapshot{
		unix: now.Unix(),
		dt:   now.Format(time.DateOnly),
		hr:   now.Format("15"),
	})
}

// Unix 는 캐시된 UTC epoch seconds.
func Unix() int64 { return current.Load().unix }

// DT 는 "YYYY-MM-DD" (UTC) 파티션 값.
func DT() string { return current.Load().dt }

// HR 은 "HH" (UTC) 파티션 값.
func HR() string { return current.Load().hr }
