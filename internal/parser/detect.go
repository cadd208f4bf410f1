package parser

import (
	"path/filepath"
	"strings"

	"course-ingest/internal/model"
)

// Classifier 는 파일 식별자(이름/경로)로 포맷을 고른다. I/O 는 하지 않는다.
type Classifier func(name string) model.Format

// DefaultClassifier
//
// 파일명 규칙 기반 분류:
//   - "web_access" 포함 → CombinedLog
//   - "api" 포함        → JSONLines
//   - 그 외             → KeyValue (기본값)
//
// 디렉토리 이름에 "api" 가 들어가도 오분류되지 않도록 base name 만 본다.
// 규칙에 맞지 않는 이름은 조용히 기본값으로 떨어진다.
func DefaultClassifier(name string) model.Format {
	base := filepath.Base(name)
	switch {
	case strings.Contains(base, "web_access"):
		return model.CombinedLog
	case strings.Contains(base, "api"):
		return model.JSONLines
	default:
		return model.KeyValue
	}
}

// Detect 는 classify 로 포맷을 정하고 registry 에서 파서를 찾는다.
func Detect(name string, classify Classifier, reg Registry) (model.Format, ParseFunc, error) {
	if classify == nil {
		classify = DefaultClassifier
	}
	f := classify(name)
	p, err := reg.Lookup(f)
	return f, p, err
}
