// Package pool 은 배치 인코딩에 반복해서 쓰이는 버퍼와 gzip writer 를 재사용한다.
//
// 파일 하나가 1000개 단위 배치 수백 개로 나뉘므로
// 배치마다 새로 할당하면 GC 부담이 커진다.
package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

const (
	// 1000 이벤트 배치 기준 초기 용량
	initialBufferCap = 256 * 1024

	// 이보다 커진 버퍼는 돌려받지 않는다 (긴 JSON 라인 배치 한 번에 풀 전체가 비대해지는 것 방지)
	MaxBufferCap = 4 * 1024 * 1024
)

var (
	buffers = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, initialBufferCap)) },
	}
	gzipWriters = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
			return w
		},
	}
)

// GetBuffer 는 비어있는 버퍼를 꺼낸다.
func GetBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer 는 버퍼를 돌려준다. MaxBufferCap 을 넘으면 버린다.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > MaxBufferCap {
		return
	}
	buf.Reset()
	buffers.Put(buf)
}

// GetGzip 은 dst 로 쓰는 BestSpeed gzip writer 를 꺼낸다.
// 호출자는 Close 로 스트림을 마무리한 뒤 PutGzip 으로 돌려준다.
func GetGzip(dst io.Writer) *gzip.Writer {
	zw := gzipWriters.Get().(*gzip.Writer)
	zw.Reset(dst)
	return zw
}

// PutGzip 은 writer 를 돌려준다. 이전 dst 참조를 끊기 위해 io.Discard 로 리셋한다.
func PutGzip(zw *gzip.Writer) {
	if zw == nil {
		return
	}
	zw.Reset(io.Discard)
	gzipWriters.Put(zw)
}
