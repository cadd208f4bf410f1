package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"course-ingest/internal/config"
	"course-ingest/internal/metrics"
	"course-ingest/internal/model"
	"course-ingest/internal/parser"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CollectorPath 는 HEC 이벤트 엔드포인트 경로.
const CollectorPath = "/services/collector/event"

// 라인 하나의 최대 길이. 넘는 라인은 파싱하지 않고 Skipped 로 센다.
const maxLineBytes = 1 << 20

// 파싱 실패 로그는 파일당 처음 몇 건만 남긴다.
const parseErrLogLimit = 5

// ErrNoRecords 는 파일의 모든 라인이 파싱에 실패해서 아무것도 보내지 못한 경우.
var ErrNoRecords = errors.New("no parseable records")

// Counts 는 파일(또는 레코드 스트림) 하나의 전송 결과.
type Counts struct {
	Events  int // HEC 가 수락한 레코드 수
	Skipped int // 파싱 실패로 건너뛴 라인 수
	Batches int // 성공한 배치 수
}

// TransmitError 는 배치 하나의 전송 실패. 해당 파일 적재를 중단시킨다.
type TransmitError struct {
	Index      string
	Batch      int    // 1부터 시작하는 배치 번호
	Status     int    // HTTP status (전송 자체가 실패했으면 0)
	DeadLetter string // 실패 body 가 저장된 경로 (없으면 "")
	Err        error
}

func (e *TransmitError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("batch %d to index %s: HEC returned %d", e.Batch, e.Index, e.Status)
	}
	return fmt.Sprintf("batch %d to index %s: %v", e.Batch, e.Index, e.Err)
}

func (e *TransmitError) Unwrap() error { return e.Err }

// Transmitter 는 레코드를 BatchSize 단위로 묶어 HEC 로 전송한다.
//
// 동작:
//   - BatchSize 에 도달하면 즉시 전송, 스트림 끝에서 남은 배치 flush
//   - 배치마다 POST 1회, 응답을 기다린 뒤 다음 배치를 만든다 (동시 전송 없음)
//   - 200/201 이외의 응답 또는 전송 오류는 TransmitError → 해당 파일 중단
//   - 실패한 배치 body 는 dead-letter 스풀에 남긴다 (재전송은 하지 않음)
type Transmitter struct {
	url       string
	batchSize int
	timeout   time.Duration
	client    *retryablehttp.Client
	encoder   *Encoder
	dlq       *DeadLetter
	metrics   *metrics.Metrics
}

// NewTransmitter 는 HEC 전송기를 만든다. dlq 는 nil 이어도 된다.
func NewTransmitter(cfg config.Config, client *retryablehttp.Client, dlq *DeadLetter, m *metrics.Metrics) *Transmitter {
	size := cfg.BatchSize
	if size <= 0 {
		size = 1000
	}
	if m == nil {
		m = metrics.New()
	}
	return &Transmitter{
		url:       strings.TrimRight(cfg.SplunkHECURL, "/") + CollectorPath,
		batchSize: size,
		timeout:   cfg.HECTimeout,
		client:    client,
		encoder:   NewEncoder(cfg.HostTag, cfg.HECGzip),
		dlq:       dlq,
		metrics:   m,
	}
}

// Send 는 이미 만들어진 레코드 시퀀스를 전송한다.
func (t *Transmitter) Send(ctx context.Context, records []model.Record, dest model.Destination, token model.Token) (Counts, error) {
	b := t.newBatcher(ctx, dest, token)
	for _, rec := range records {
		if err := b.add(rec); err != nil {
			return b.counts, err
		}
	}
	return b.counts, b.flush()
}

// SendLines 는 r 을 한 줄씩 읽어 parse 로 변환하면서 전송한다.
//
// 빈 줄은 무시, 파싱 실패 라인은 Skipped 로 세고 계속 진행한다.
// 모든 라인이 파싱에 실패하면 ErrNoRecords.
func (t *Transmitter) SendLines(ctx context.Context, r io.Reader, parse parser.ParseFunc, dest model.Destination, token model.Token) (Counts, error) {
	b := t.newBatcher(ctx, dest, token)
	lr := newLineReader(r)

	skip := func(err error) {
		if b.counts.Skipped < parseErrLogLimit {
			log.Debug().Err(err).Str("index", dest.Index).Msg("skipping unparseable line")
		}
		b.counts.Skipped++
		atomic.AddInt64(&t.metrics.LinesSkippedTotal, 1)
	}

	for {
		raw, tooLong, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 이미 파싱된 레코드는 보낸 뒤 읽기 오류를 알린다
			if ferr := b.flush(); ferr != nil {
				return b.counts, ferr
			}
			return b.counts, errors.Wrap(err, "read lines")
		}
		if tooLong {
			skip(errors.Errorf("line exceeds %d bytes", maxLineBytes))
			continue
		}

		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}

		rec, err := parse(line)
		if err != nil {
			skip(err)
			continue
		}

		if err := b.add(rec); err != nil {
			return b.counts, err
		}
	}

	if err := b.flush(); err != nil {
		return b.counts, err
	}
	if b.counts.Events == 0 && b.counts.Skipped > 0 {
		return b.counts, ErrNoRecords
	}
	return b.counts, nil
}

// lineReader 는 길이 제한 없이 라인을 읽는다.
// maxLineBytes 를 넘는 라인은 내용을 버리고 다음 줄바꿈까지 건너뛴다.
type lineReader struct {
	br  *bufio.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// next 는 다음 라인을 돌려준다. tooLong 이면 line 은 비어있다.
// 더 읽을 것이 없으면 io.EOF.
func (lr *lineReader) next() (line []byte, tooLong bool, err error) {
	lr.buf = lr.buf[:0]
	for {
		chunk, err := lr.br.ReadSlice('\n')
		if !tooLong {
			// 줄바꿈 1바이트는 제한에서 뺀다
			if len(lr.buf)+len(bytes.TrimSuffix(chunk, []byte{'\n'})) > maxLineBytes {
				tooLong = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, chunk...)
			}
		}

		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF:
			if len(lr.buf) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return lr.buf, tooLong, nil
		case err != nil:
			return nil, false, err
		default:
			return lr.buf, tooLong, nil
		}
	}
}

// batcher 는 파일 하나 동안의 배치 상태.
type batcher struct {
	t      *Transmitter
	ctx    context.Context
	dest   model.Destination
	token  model.Token
	batch  []model.Record
	seq    int
	counts Counts
}

func (t *Transmitter) newBatcher(ctx context.Context, dest model.Destination, token model.Token) *batcher {
	return &batcher{
		t:     t,
		ctx:   ctx,
		dest:  dest,
		token: token,
		batch: make([]model.Record, 0, t.batchSize),
	}
}

func (b *batcher) add(rec model.Record) error {
	b.batch = append(b.batch, rec)
	if len(b.batch) >= b.t.batchSize {
		return b.flush()
	}
	return nil
}

// flush 는 현재 배치를 전송한다. 비어있으면 아무것도 하지 않는다.
// 전송이 끝나면 batch 를 재사용한다 (동기 전송이므로 안전).
func (b *batcher) flush() error {
	if len(b.batch) == 0 {
		return nil
	}
	b.seq++

	n := len(b.batch)
	err := b.t.post(b.ctx, b.batch, b.dest, b.token, b.seq)
	b.batch = b.batch[:0]
	if err != nil {
		return err
	}

	b.counts.Events += n
	b.counts.Batches++
	return nil
}

// post 는 배치 1개를 인코딩해서 HEC 로 보낸다.
func (t *Transmitter) post(ctx context.Context, records []model.Record, dest model.Destination, token model.Token, seq int) error {
	body, err := t.encoder.EncodeBatch(records, dest)
	if err != nil {
		atomic.AddInt64(&t.metrics.BatchErrorsTotal, 1)
		return &TransmitError{Index: dest.Index, Batch: seq, Err: errors.Wrap(err, "encode batch")}
	}

	status, err := t.do(ctx, body, token)
	if err == nil && (status == http.StatusOK || status == http.StatusCreated) {
		atomic.AddInt64(&t.metrics.BatchesSentTotal, 1)
		atomic.AddInt64(&t.metrics.RecordsSentTotal, int64(len(records)))
		return nil
	}

	atomic.AddInt64(&t.metrics.BatchErrorsTotal, 1)
	terr := &TransmitError{Index: dest.Index, Batch: seq, Status: status, Err: err}
	if terr.Err == nil {
		terr.Err = errors.Errorf("unexpected status %d", status)
	}

	if t.dlq != nil {
		meta := DeadLetterMeta{
			NumEvents:  len(records),
			Index:      dest.Index,
			SourceType: dest.SourceType,
			Batch:      seq,
			Status:     status,
			Gzip:       t.encoder.Gzip(),
			Error:      terr.Err.Error(),
		}
		path, derr := t.dlq.Save(body, meta)
		if derr != nil {
			log.Error().Err(derr).Msg("dead-letter save failed")
		}
		terr.DeadLetter = path
	}
	return terr
}

// do 는 POST 1회. 배치 단위 재시도는 하지 않는다 (client RetryMax 로 제어).
func (t *Transmitter) do(ctx context.Context, body []byte, token model.Token) (int, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Splunk "+string(token))
	req.Header.Set("Content-Type", "application/json")
	if t.encoder.Gzip() {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := t.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
