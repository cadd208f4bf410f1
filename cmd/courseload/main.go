package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"course-ingest/internal/config"
	"course-ingest/internal/logger"
	"course-ingest/internal/metrics"

	"github.com/rs/zerolog/log"
)

func main() {
	// ====================================================================
	// Config / Logger / Metrics
	// ====================================================================
	//
	// 설정은 환경변수 기반. 잘못된 값이면 Load() 안에서 즉시 종료한다.
	// 플래그로 넘긴 값은 RootCmd 에서 cfg 를 덮어쓴다.
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// 종료 시그널
	// ====================================================================
	//
	// SIGINT / SIGTERM 을 받으면 ctx 가 취소된다.
	// 검증 루프는 단계 사이에서 이를 확인하고, 지금까지의 시도로 리포트를 남긴다.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := RootCmd(&cfg, m).ExecuteContext(ctx)
	stop()

	log.Info().Fields(m.Fields()).Msg("metrics")
	if err != nil {
		log.Error().Err(err).Msg("courseload failed")
		os.Exit(1)
	}
}
