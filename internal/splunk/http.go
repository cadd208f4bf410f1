package splunk

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewHTTPClient
//
// Splunk 관리 API / HEC 공용 HTTP client.
//   - 개발용 컨테이너는 self-signed 인증서이므로 TLS 검증을 끈다
//   - retries: 연결 실패 / 5xx 에 대한 재시도 횟수 (0 이면 1회만 시도)
//   - status code 는 그대로 호출자에게 넘긴다 (PassthroughErrorHandler)
//     → 201/409 같은 판단은 호출자가 한다
func NewHTTPClient(retries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = leveledLogger{log.Logger}

	c.HTTPClient.Transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // local dev instance
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return c
}

// leveledLogger 는 retryablehttp 로그를 zerolog debug 로 보낸다.
type leveledLogger struct {
	l zerolog.Logger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Debug().Fields(kv).Msg(msg) }
