// Package splunk 는 적재 대상(Splunk) 관리 REST API 와 컨테이너 수명주기를 다룬다.
package splunk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"course-ingest/internal/config"
	"course-ingest/internal/model"

	"github.com/avast/retry-go"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	serverInfoPath = "/services/server/info"
	indexesPath    = "/servicesNS/nobody/system/data/indexes"
	httpInputPath  = "/servicesNS/admin/splunk_httpinput/data/inputs/http"
)

// StatusError 는 관리 API 가 예상하지 못한 status 를 돌려준 경우.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %.200s", e.Op, e.Status, e.Body)
}

// Client 는 Splunk 관리 API(기본 8089 포트) client.
type Client struct {
	base     string
	user     string
	password string
	timeout  time.Duration

	healthTimeout  time.Duration
	healthInterval time.Duration

	http *retryablehttp.Client
}

func NewClient(cfg config.Config, hc *retryablehttp.Client) *Client {
	return &Client{
		base:           strings.TrimRight(cfg.SplunkMgmtURL, "/"),
		user:           cfg.SplunkUser,
		password:       cfg.SplunkPassword,
		timeout:        cfg.MgmtTimeout,
		healthTimeout:  cfg.HealthTimeout,
		healthInterval: cfg.HealthInterval,
		http:           hc,
	}
}

// Ping 은 server/info 를 한 번 조회한다. 200 이면 준비 완료.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.call(ctx, http.MethodGet, serverInfoPath, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Op: "server info", Status: status, Body: body}
	}
	return nil
}

// WaitReady
//
// server/info 가 200 을 줄 때까지 HealthInterval 간격으로 폴링한다.
// 전체 대기 시간은 HealthTimeout 으로 제한되며, 넘기면 마지막 에러를 반환한다.
func (c *Client) WaitReady(ctx context.Context) error {
	interval := c.healthInterval
	if interval <= 0 {
		interval = time.Second
	}
	attempts := uint(c.healthTimeout / interval)
	if attempts < 1 {
		attempts = 1
	}

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout+interval)
	defer cancel()

	err := retry.Do(
		func() error { return c.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Uint("poll", n+1).Err(err).Msg("splunk not ready yet")
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "splunk not ready after %s", c.healthTimeout)
	}
	return nil
}

// CreateIndex 는 인덱스를 만든다. 201(생성)과 409(이미 존재) 모두 성공이다.
// existed 는 409 였는지 여부.
func (c *Client) CreateIndex(ctx context.Context, spec model.IndexSpec) (existed bool, err error) {
	datatype := spec.DataType
	if datatype == "" {
		datatype = "event"
	}
	form := url.Values{"name": {spec.Name}, "datatype": {datatype}}

	status, body, err := c.call(ctx, http.MethodPost, indexesPath, form)
	if err != nil {
		return false, errors.Wrapf(err, "create index %s", spec.Name)
	}

	switch status {
	case http.StatusCreated:
		return false, nil
	case http.StatusConflict:
		return true, nil
	default:
		return false, &StatusError{Op: "create index " + spec.Name, Status: status, Body: body}
	}
}

// EnsureToken
//
// HEC input(name)을 indexes 범위로 만들고 토큰 값을 돌려준다.
//   - 201/409 응답 body 에서 token 추출
//   - 409 인데 body 에 token 이 없으면 GET 으로 기존 input 을 조회해서 추출
//
// 두 경로 모두 같은 토큰 값으로 수렴한다.
func (c *Client) EnsureToken(ctx context.Context, name string, indexes []string) (model.Token, error) {
	if len(indexes) == 0 {
		return "", errors.New("token needs at least one index")
	}
	form := url.Values{
		"name":     {name},
		"index":    {indexes[0]},
		"indexes":  {strings.Join(indexes, ",")},
		"disabled": {"0"},
	}

	status, body, err := c.call(ctx, http.MethodPost, httpInputPath+"?output_mode=json", form)
	if err != nil {
		return "", errors.Wrap(err, "create HEC input")
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return "", &StatusError{Op: "create HEC input", Status: status, Body: body}
	}
	if tok := extractToken(body); tok != "" {
		log.Info().Str("input", name).Msg("✓ HEC token ready")
		return model.Token(tok), nil
	}

	path := httpInputPath + "/" + url.PathEscape(name) + "?output_mode=json"
	status, body, err = c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", errors.Wrap(err, "get HEC input")
	}
	if status != http.StatusOK {
		return "", &StatusError{Op: "get HEC input", Status: status, Body: body}
	}
	if tok := extractToken(body); tok != "" {
		log.Info().Str("input", name).Msg("✓ HEC token retrieved")
		return model.Token(tok), nil
	}
	return "", errors.Errorf("HEC input %s has no token", name)
}

// inputResponse 는 output_mode=json 응답 중 필요한 부분.
type inputResponse struct {
	Entry []struct {
		Name    string `json:"name"`
		Content struct {
			Token string `json:"token"`
		} `json:"content"`
	} `json:"entry"`
}

func extractToken(body string) string {
	var r inputResponse
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return ""
	}
	for _, e := range r.Entry {
		if e.Content.Token != "" {
			return e.Content.Token
		}
	}
	return ""
}

// call 은 관리 API 호출 1회 (연결 실패 재시도는 retryablehttp 가 담당).
// body 는 최대 64KB 까지만 읽는다.
func (c *Client) call(ctx context.Context, method, path string, form url.Values) (int, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var raw interface{}
	if form != nil {
		raw = []byte(form.Encode())
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, raw)
	if err != nil {
		return 0, "", err
	}
	req.SetBasicAuth(c.user, c.password)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return 0, "", err
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(b), nil
}
