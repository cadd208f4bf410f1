package parser

import (
	"regexp"
	"strconv"
	"strings"

	"course-ingest/internal/clock"
	"course-ingest/internal/model"
)

var (
	kvPrefixRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\s+(.+)$`)

	// key=value 또는 key="value with \"escaped\" quotes"
	kvPairRe = regexp.MustCompile(`(\w+)=("(?:[^"\\]|\\.)*"|\S+)`)

	kvUnescape = strings.NewReplacer(`\"`, `"`, `\\`, `\`)
)

// KeyValue 는 "YYYY-MM-DD HH:MM:SS k=v k2="v 2"" 포맷 파서를 만든다.
//
// timestamp prefix 가 없으면 실패, 개별 pair 가 깨져 있으면 그 pair 만 건너뛴다.
func KeyValue(now clock.Func) ParseFunc {
	return func(line string) (model.Record, error) {
		m := kvPrefixRe.FindStringSubmatch(line)
		if m == nil {
			return model.Record{}, failf("key-value: missing timestamp prefix")
		}

		fields := make(map[string]any)
		for _, pair := range kvPairRe.FindAllStringSubmatch(m[2], -1) {
			key := pair[1]
			if key == model.TimeField {
				continue
			}
			fields[key] = coerceKV(pair[2])
		}

		return model.Record{Time: now(), Fields: fields}, nil
	}
}

// coerceKV
//
//   - 따옴표 제거 (+ \" 복원)
//   - "-" → nil
//   - "." 포함 → float64 시도
//   - 그 외 → int64 시도
//   - 실패하면 문자열 그대로
func coerceKV(v string) any {
	if len(v) >= 1 && v[0] == '"' && v[len(v)-1] == '"' {
		// 닫는 따옴표 없는 key=" 는 빈 문자열
		if len(v) == 1 {
			v = ""
		} else {
			v = kvUnescape.Replace(v[1 : len(v)-1])
		}
	}
	if v == "-" {
		return nil
	}

	if strings.Contains(v, ".") {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}
