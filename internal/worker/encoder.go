package worker

import (
	"bytes"
	"io"

	"course-ingest/internal/model"
	"course-ingest/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Encoder 는 레코드 배치를 HEC body(줄바꿈으로 이어진 JSON object)로
// 직렬화하는 컴포넌트.
//
// 특징:
//   - goccy/go-json 기반 JSON 인코딩
//   - bytes.Buffer / gzip.Writer 재사용(pool 기반)
//   - 결과는 새로운 []byte 로 복사해 호출자에게 소유권을 넘김
//     (pool 버퍼를 그대로 반환하면 데이터 corruption 위험)
type Encoder struct {
	host string
	gzip bool
}

func NewEncoder(host string, gz bool) *Encoder {
	return &Encoder{host: host, gzip: gz}
}

// Gzip 은 body 가 gzip 압축되는지 여부 (Content-Encoding 헤더 결정용).
func (e *Encoder) Gzip() bool {
	return e.gzip
}

// Wrap 은 레코드 하나를 목적지 정보와 함께 HEC 이벤트로 감싼다.
// Record.Time 은 event 밖의 time 필드로만 나간다.
func (e *Encoder) Wrap(rec model.Record, dest model.Destination) model.HECEvent {
	return model.HECEvent{
		Time:       rec.Time,
		Index:      dest.Index,
		SourceType: dest.SourceType,
		Host:       e.host,
		Event:      rec.Fields,
	}
}

// EncodeBatch 는 배치를 한 줄에 하나씩 JSON 인코딩하고,
// gzip 옵션이 켜져 있으면 압축까지 해서 반환한다.
//
// 반환값:
// - data: 결과 byte slice(호출자 소유)
// - err: 인코딩 과정 중 오류 발생 시
func (e *Encoder) EncodeBatch(records []model.Record, dest model.Destination) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	var (
		w  io.Writer = buf
		gz *gzip.Writer
	)
	if e.gzip {
		gz = pool.GetGzip(buf)
		defer pool.PutGzip(gz)
		w = gz
	}

	// json.Encoder 는 object 마다 '\n' 을 붙인다 → 그대로 JSONL
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(e.Wrap(rec, dest)); err != nil {
			if gz != nil {
				_ = gz.Close()
			}
			return nil, err
		}
	}

	if gz != nil {
		// Close() 시 gzip footer 가 기록되어 스트림이 완성됨.
		if err := gz.Close(); err != nil {
			return nil, err
		}
	}

	return copyBytes(buf), nil
}

func copyBytes(buf *bytes.Buffer) []byte {
	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	return data
}
