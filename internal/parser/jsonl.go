package parser

import (
	"io"
	"strings"

	"course-ingest/internal/clock"
	"course-ingest/internal/model"

	json "github.com/goccy/go-json"
)

// JSONLines 는 한 줄에 JSON object 하나인 포맷 파서를 만든다.
//
// 숫자는 json.Number 로 받아서 정수 표기면 int64, 아니면 float64 로 바꾼다.
// (float64 로 한 번에 받으면 3 과 3.0 을 구분할 수 없다)
func JSONLines(now clock.Func) ParseFunc {
	return func(line string) (model.Record, error) {
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()

		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return model.Record{}, failf("json-lines: %v", err)
		}
		if obj == nil {
			return model.Record{}, failf("json-lines: not an object")
		}

		// 한 라인에 object 가 두 개 이상이거나 뒤에 쓰레기가 붙은 경우
		var extra any
		if err := dec.Decode(&extra); err != io.EOF {
			return model.Record{}, failf("json-lines: trailing data")
		}

		delete(obj, model.TimeField)
		for k, v := range obj {
			obj[k] = coerceJSON(v)
		}

		return model.Record{Time: now(), Fields: obj}, nil
	}
}

func coerceJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, vv := range t {
			t[k] = coerceJSON(vv)
		}
		return t
	case []any:
		for i, vv := range t {
			t[i] = coerceJSON(vv)
		}
		return t
	default:
		return v
	}
}
