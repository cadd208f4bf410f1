// internal/model/manifest.go
package model

// IndexSpec 는 생성해야 할 인덱스 하나.
type IndexSpec struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"datatype"`
}

// FileSpec 은 (파일, 인덱스, sourcetype) 매핑 하나.
type FileSpec struct {
	File       string `yaml:"file"`
	Index      string `yaml:"index"`
	SourceType string `yaml:"sourcetype"`
}

func (f FileSpec) Destination() Destination {
	return Destination{Index: f.Index, SourceType: f.SourceType}
}

// Manifest 는 한 번의 적재(run)에서 다루는 인덱스와 파일 목록이다.
type Manifest struct {
	Indexes []IndexSpec `yaml:"indexes"`
	Files   []FileSpec  `yaml:"files"`
}

// IndexNames 는 HEC 토큰 scope 로 쓰이는 인덱스 이름 목록을 반환한다.
func (m Manifest) IndexNames() []string {
	names := make([]string, 0, len(m.Indexes))
	for _, ix := range m.Indexes {
		names = append(names, ix.Name)
	}
	return names
}
