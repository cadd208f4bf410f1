// internal/config/manifest.go
package config

import (
	"os"

	"course-ingest/internal/model"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultManifest
//
// 코스 데이터 생성기가 만드는 6개 파일과 6개 인덱스 매핑.
// MANIFEST_FILE 이 없을 때 사용된다.
func DefaultManifest() model.Manifest {
	return model.Manifest{
		Indexes: []model.IndexSpec{
			{Name: "web", DataType: "event"},
			{Name: "app", DataType: "event"},
			{Name: "auth", DataType: "event"},
			{Name: "sales", DataType: "event"},
			{Name: "performance", DataType: "event"},
			{Name: "api", DataType: "event"},
		},
		Files: []model.FileSpec{
			{File: "web_access.log", Index: "web", SourceType: "access_combined"},
			{File: "application.log", Index: "app", SourceType: "syslog"},
			{File: "auth.log", Index: "auth", SourceType: "linux_secure"},
			{File: "sales.log", Index: "sales", SourceType: "_json"},
			{File: "performance.log", Index: "performance", SourceType: "_json"},
			{File: "api.log", Index: "api", SourceType: "_json"},
		},
	}
}

// LoadManifest 는 YAML manifest 를 읽는다. path 가 비어있으면 기본 manifest.
//
//	indexes:
//	  - name: web
//	files:
//	  - file: web_access.log
//	    index: web
//	    sourcetype: access_combined
func LoadManifest(path string) (model.Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Manifest{}, errors.Wrap(err, "read manifest")
	}

	var m model.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return model.Manifest{}, errors.Wrapf(err, "parse manifest %s", path)
	}
	if err := validateManifest(&m); err != nil {
		return model.Manifest{}, errors.Wrapf(err, "manifest %s", path)
	}
	return m, nil
}

// validateManifest 는 빈 이름/누락된 인덱스를 거르고 datatype 기본값을 채운다.
func validateManifest(m *model.Manifest) error {
	if len(m.Indexes) == 0 {
		return errors.New("no indexes declared")
	}

	known := make(map[string]bool, len(m.Indexes))
	for i := range m.Indexes {
		if m.Indexes[i].Name == "" {
			return errors.Errorf("index #%d has no name", i+1)
		}
		if m.Indexes[i].DataType == "" {
			m.Indexes[i].DataType = "event"
		}
		known[m.Indexes[i].Name] = true
	}

	for i, f := range m.Files {
		if f.File == "" {
			return errors.Errorf("file #%d has no name", i+1)
		}
		if !known[f.Index] {
			return errors.Errorf("file %s targets undeclared index %q", f.File, f.Index)
		}
	}
	return nil
}
