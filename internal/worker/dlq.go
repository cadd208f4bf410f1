// internal/worker/dlq.go
package worker

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"course-ingest/internal/clock"
	"course-ingest/internal/metrics"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const metaSuffix = ".meta.json"

// DeadLetterMeta 는 실패 배치 옆에 저장되는 메타 정보.
type DeadLetterMeta struct {
	NumEvents  int    `json:"num_events"`
	Index      string `json:"index"`
	SourceType string `json:"sourcetype"`
	Batch      int    `json:"batch"`
	Status     int    `json:"status,omitempty"`
	Gzip       bool   `json:"gzip"`
	Error      string `json:"error,omitempty"`
}

// DeadLetter 는 HEC 전송에 실패한 배치 body 를 로컬 디스크에 보관한다.
//   - 같은 실행 안에서 재전송하지 않는다 (파일 단위 실패로 처리)
//   - 원인 분석용 진단 자료이며, 용량/TTL 정책으로 자동 정리된다
//
// TTL 판단은 "파일명 prefix 의 Unix timestamp" 기준으로 한다.
type DeadLetter struct {
	dir        string
	instanceID string
	maxAge     time.Duration
	maxBytes   int64
	metrics    *metrics.Metrics

	sizeBytes int64
}

// NewDeadLetter 는 디렉토리를 만들고 기존 파일을 스캔해 용량을 복원한다.
// meta orphan (data 없이 .meta.json 만 남은 경우) 도 정리한다.
func NewDeadLetter(dir, instanceID string, maxAge time.Duration, maxBytes int64, m *metrics.Metrics) *DeadLetter {
	_ = os.MkdirAll(dir, 0o755)

	d := &DeadLetter{
		dir:        dir,
		instanceID: instanceID,
		maxAge:     maxAge,
		maxBytes:   maxBytes,
		metrics:    m,
	}

	var total, count int64
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()

			if strings.HasSuffix(name, metaSuffix) {
				dataName := strings.TrimSuffix(name, metaSuffix)
				if _, err := os.Stat(filepath.Join(dir, dataName)); os.IsNotExist(err) {
					_ = os.Remove(filepath.Join(dir, name))
				}
				continue
			}

			if info, err := e.Info(); err == nil {
				total += info.Size()
				count++
			}
		}
	}

	atomic.StoreInt64(&d.sizeBytes, total)
	atomic.AddInt64(&m.DeadLetterSizeBytes, total)
	atomic.AddInt64(&m.DeadLetterFilesCurrent, count)

	return d
}

// Dir 는 스풀 디렉토리 경로.
func (d *DeadLetter) Dir() string {
	return d.dir
}

// Save 는 실패 배치 body 와 메타 파일을 저장하고 data 파일 경로를 반환한다.
// 용량이 부족하면 가장 오래된 파일부터 지우고, 그래도 부족하면 버린다("" 반환).
func (d *DeadLetter) Save(data []byte, meta DeadLetterMeta) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	size := int64(len(data))
	if !d.ensureCapacity(size) {
		log.Error().Int64("bytes", size).Int("events", meta.NumEvents).Msg("dead-letter full, batch dropped")
		atomic.AddInt64(&d.metrics.DeadLetterDroppedTotal, 1)
		return "", nil
	}

	dataPath := filepath.Join(d.dir, spoolFilename(d.instanceID, meta.Gzip))

	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		return "", err
	}
	if b, err := json.Marshal(meta); err == nil {
		_ = os.WriteFile(dataPath+metaSuffix, b, 0o600)
	}

	atomic.AddInt64(&d.sizeBytes, size)
	atomic.AddInt64(&d.metrics.DeadLetterSizeBytes, size)
	atomic.AddInt64(&d.metrics.DeadLetterFilesCurrent, 1)
	atomic.AddInt64(&d.metrics.DeadLetterBatchesTotal, 1)

	return dataPath, nil
}

// ensureCapacity 는 maxBytes 를 초과하지 않도록
// 가장 오래된 data/meta 파일부터 삭제한다.
// data 파일이 더 이상 없으면 false 를 반환한다.
func (d *DeadLetter) ensureCapacity(incoming int64) bool {
	if d.maxBytes <= 0 {
		return true
	}

	for {
		if atomic.LoadInt64(&d.sizeBytes)+incoming <= d.maxBytes {
			return true
		}

		oldest := d.pickOldest()
		if oldest == "" {
			return false
		}

		d.remove(oldest)
		log.Warn().Str("file", oldest).Msg("dead-letter capacity, removed oldest")
	}
}

// PruneExpired 는 TTL(maxAge) 을 넘긴 파일을 모두 지우고 지운 개수를 반환한다.
func (d *DeadLetter) PruneExpired() int {
	if d.maxAge <= 0 {
		return 0
	}

	removed := 0
	nowSec := clock.Unix()
	for _, name := range d.dataFiles() {
		sec, ok := extractUnixFromFilename(name)
		if !ok {
			continue
		}
		if age := time.Duration(nowSec-sec) * time.Second; age > d.maxAge {
			d.remove(name)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("files", removed).Dur("max_age", d.maxAge).Msg("dead-letter TTL expired")
	}
	return removed
}

func (d *DeadLetter) remove(name string) {
	dataPath := filepath.Join(d.dir, name)

	if info, err := os.Stat(dataPath); err == nil {
		atomic.AddInt64(&d.sizeBytes, -info.Size())
		atomic.AddInt64(&d.metrics.DeadLetterSizeBytes, -info.Size())
	}
	_ = os.Remove(dataPath)
	_ = os.Remove(dataPath + metaSuffix)

	atomic.AddInt64(&d.metrics.DeadLetterFilesCurrent, -1)
	atomic.AddInt64(&d.metrics.DeadLetterExpiredTotal, 1)
}

// pickOldest 는 data 파일 중 파일명 기준(=timestamp 기준)으로 가장 오래된 것.
// ReadDir 순서는 보장되지 않으므로 반드시 정렬한다.
func (d *DeadLetter) pickOldest() string {
	files := d.dataFiles()
	if len(files) == 0 {
		return ""
	}
	return files[0]
}

func (d *DeadLetter) dataFiles() []string {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, metaSuffix) || name == "" || name[0] == '.' {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files
}

// extractUnixFromFilename 은 파일명 prefix 에서 Unix seconds 를 파싱한다.
// 파일명 형식: "<unix>_<instance>_<counter>.jsonl[.gz]"
func extractUnixFromFilename(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return sec, true
}
