package parser

import (
	"regexp"
	"strconv"

	"course-ingest/internal/clock"
	"course-ingest/internal/model"
)

// Apache combined log + 응답시간 suffix:
//
//	1.2.3.4 - user0001 [18/Oct/2025:04:14:34 +0000] "GET /home HTTP/1.1" 200 512 "-" "Mozilla/5.0" 120ms
var combinedRe = regexp.MustCompile(
	`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+) (\S+) \S+" (\d+) (\d+) "([^"]*)" "([^"]*)" (\d+)ms$`,
)

// CombinedLog 는 combined-log 포맷 파서를 만든다.
// user / referer 의 "-" 는 null 이 된다.
func CombinedLog(now clock.Func) ParseFunc {
	return func(line string) (model.Record, error) {
		m := combinedRe.FindStringSubmatch(line)
		if m == nil {
			return model.Record{}, failf("combined-log: line does not match")
		}

		status, err := strconv.ParseInt(m[6], 10, 64)
		if err != nil {
			return model.Record{}, failf("combined-log: status %q", m[6])
		}
		bytes, err := strconv.ParseInt(m[7], 10, 64)
		if err != nil {
			return model.Record{}, failf("combined-log: bytes %q", m[7])
		}
		rt, err := strconv.ParseInt(m[10], 10, 64)
		if err != nil {
			return model.Record{}, failf("combined-log: response time %q", m[10])
		}

		// m[3] (원본 timestamp) 는 의도적으로 버린다.
		return model.Record{
			Time: now(),
			Fields: map[string]any{
				"src_ip":        m[1],
				"user":          nullable(m[2]),
				"method":        m[4],
				"url":           m[5],
				"status":        status,
				"bytes":         bytes,
				"referer":       nullable(m[8]),
				"user_agent":    m[9],
				"response_time": rt,
			},
		}, nil
	}
}

// nullable 은 absent-value 마커 "-" 를 nil 로 바꾼다.
func nullable(s string) any {
	if s == "-" {
		return nil
	}
	return s
}
