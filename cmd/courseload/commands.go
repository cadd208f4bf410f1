package main

import (
	"course-ingest/internal/config"
	"course-ingest/internal/ingest"
	"course-ingest/internal/metrics"
	"course-ingest/internal/parser"
	"course-ingest/internal/splunk"
	"course-ingest/internal/validate"
	"course-ingest/internal/worker"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootCmd 는 courseload 의 최상위 명령. load / validate 를 하위 명령으로 가진다.
func RootCmd(cfg *config.Config, m *metrics.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "courseload",
		Short:         "Loads synthetic course logs into Splunk and validates them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&cfg.ManifestFile, "manifest", cfg.ManifestFile, "YAML manifest of indexes and files (default: built-in)")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the generated log files")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "events per HEC request")
	f.BoolVar(&cfg.HECGzip, "gzip", cfg.HECGzip, "gzip HEC request bodies")

	cmd.AddCommand(
		loadCmd(cfg, m),
		validateCmd(cfg, m),
	)
	return cmd
}

func loadCmd(cfg *config.Config, m *metrics.Metrics) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Create indexes and a HEC token, then load every manifest file once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			coord, _, err := buildCoordinator(*cfg, m)
			if err != nil {
				return err
			}
			sum, err := coord.Run(ctx)
			if err != nil {
				return err
			}
			return sum.Err()
		},
	}
}

func validateCmd(cfg *config.Config, m *metrics.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run provision, generate, load and verify until every test passes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			coord, docker, err := buildCoordinator(*cfg, m)
			if err != nil {
				return err
			}

			stages := validate.NewDefaultStages(docker, coord, validate.StageConfig{
				Generate:    validate.Command{Args: cfg.GenerateCmd, Dir: cfg.GenerateDir},
				Verify:      validate.Command{Args: cfg.VerifyCmd, Dir: cfg.VerifyDir},
				DataDir:     cfg.DataDir,
				ReportsDir:  cfg.VerifyReports,
				PreLoadWait: cfg.PreLoadWait,
			})

			var archiver validate.Archiver
			if cfg.ReportBucket != "" {
				up, err := worker.NewS3Uploader(ctx, *cfg, m)
				if err != nil {
					return err
				}
				archiver = up
			}

			orch := validate.NewOrchestrator(stages, validate.Options{
				MaxAttempts: cfg.MaxAttempts,
				IndexWait:   cfg.IndexWait,
				RetryDelay:  cfg.RetryDelay,
				ReportDir:   cfg.ReportDir,
				Out:         cmd.OutOrStdout(),
			}, archiver, m)

			_, err = orch.Run(ctx)
			return err
		},
	}
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "attempt budget")
	cmd.Flags().StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "where validation_report_*.json is written")
	return cmd
}

// buildCoordinator 는 관리 client, HEC 전송기, dead-letter 스풀, Docker 를 조립한다.
func buildCoordinator(cfg config.Config, m *metrics.Metrics) (*ingest.Coordinator, *splunk.Docker, error) {
	manifest, err := config.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return nil, nil, err
	}

	api, err := splunk.NewDockerAPI()
	if err != nil {
		return nil, nil, errors.Wrap(err, "docker client")
	}
	docker := splunk.NewDocker(cfg, api)

	admin := splunk.NewClient(cfg, splunk.NewHTTPClient(cfg.MgmtRetries))

	dlq := worker.NewDeadLetter(cfg.DeadLetterDir, cfg.InstanceID, cfg.DeadLetterMaxAge, cfg.DeadLetterMaxBytes, m)
	if n := dlq.PruneExpired(); n > 0 {
		log.Info().Str("dir", dlq.Dir()).Int("removed", n).Msg("expired dead-letter files pruned")
	}
	// 배치는 재전송하지 않는다
	tx := worker.NewTransmitter(cfg, splunk.NewHTTPClient(0), dlq, m)

	coord := ingest.NewCoordinator(admin, tx, docker, manifest, ingest.Options{
		DataDir:     cfg.DataDir,
		TokenName:   cfg.TokenName,
		IndexSettle: cfg.IndexSettle,
		LookupFile:  cfg.LookupFile,
		LookupDest:  cfg.LookupDestPath,
		Classify:    parser.DefaultClassifier,
		Parsers:     parser.NewRegistry(nil),
	}, m)

	return coord, docker, nil
}
