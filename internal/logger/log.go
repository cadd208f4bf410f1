// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"course-ingest/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 프로세스 시작 시 한 번 호출한다. 이후 어디서든 zerolog 전역 log 를 쓴다.
//
//  1. 레벨: LOG_LEVEL (잘못된 값이면 info)
//  2. 출력: LOG_PRETTY=true 면 터미널용 ConsoleWriter, 아니면 JSON 한 줄
//  3. 공통 필드: service, instance
//  4. 표준 log 패키지 출력도 zerolog 로 보낸다 (외부 라이브러리 로그 포함)
//
// 검증 러너는 사람이 터미널에서 지켜보는 경우가 많아서 기본값이 pretty 이다.
func Init(cfg config.Config) {
	InitWriter(cfg, os.Stdout)
}

// InitWriter 는 출력 대상을 지정할 수 있는 Init. 테스트에서 버퍼로 받을 때 쓴다.
func InitWriter(cfg config.Config, out io.Writer) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if cfg.LogPretty {
		// 예: 10:00:05 INF ✓ created index index=course_web service=course-ingest
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	zlog.Logger = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	// zerolog 가 시간을 찍으므로 표준 log 의 prefix 는 뺀다
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
