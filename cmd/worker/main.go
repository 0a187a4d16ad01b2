package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/infra/archive"
	"github.com/edc22osm/viofo2jpg/internal/infra/config"
	"github.com/edc22osm/viofo2jpg/internal/infra/email"
	"github.com/edc22osm/viofo2jpg/internal/infra/exiftool"
	"github.com/edc22osm/viofo2jpg/internal/infra/ffmpeg"
	"github.com/edc22osm/viofo2jpg/internal/infra/metrics"
	miniostorage "github.com/edc22osm/viofo2jpg/internal/infra/minio"
	"github.com/edc22osm/viofo2jpg/internal/infra/postgres"
	"github.com/edc22osm/viofo2jpg/internal/infra/rabbitmq"
	"github.com/edc22osm/viofo2jpg/internal/infra/tracing"
	"github.com/edc22osm/viofo2jpg/internal/usecase"
	"github.com/edc22osm/viofo2jpg/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting viofo2jpg worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	fatalOnErr(postgres.RunMigrations(ctx, pool), "run migrations")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		VideoBucket:  cfg.MinIOVideoBucket,
		ImagesBucket: cfg.MinIOImagesBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	statusPub, err := rabbitmq.NewStatusPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create status publisher")
	dlqPub, err := rabbitmq.NewDLQPublisher(rmqConn, cfg.RabbitMQDLQ)
	fatalOnErr(err, "create dlq publisher")

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	extractor := ffmpeg.NewExtractor("", "", log)
	tagger := exiftool.NewTagger("", log)
	zipper := archive.NewZipper()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	geotagger := usecase.NewGeotagUseCase(extractor, tagger, log, pipelineConfig(cfg))

	uc := usecase.NewProcessJobUseCase(
		repo, storage, geotagger, zipper,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessJobConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQProcessQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("viofo2jpg worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("viofo2jpg worker stopped")
}

// pipelineConfig translates the environment settings into the pipeline's
// own configuration. Crop strings were already validated at load time.
func pipelineConfig(cfg *config.Config) usecase.PipelineConfig {
	crop, _ := config.ParseCrop(cfg.Crop)
	cropFront, _ := config.ParseCrop(cfg.CropFront)
	cropRear, _ := config.ParseCrop(cfg.CropRear)

	return usecase.PipelineConfig{
		FrameInterval:         time.Duration(cfg.FrameIntervalMs) * time.Millisecond,
		MaxSkew:               time.Duration(cfg.MaxSkewMs) * time.Millisecond,
		MinDistance:           cfg.MinDistanceMeters,
		NoSkip:                cfg.NoSkip,
		Arrange:               cfg.Arrange,
		ContinuityGap:         time.Duration(cfg.ContinuityGapSec) * time.Second,
		Crop:                  crop,
		CropFront:             cropFront,
		CropRear:              cropRear,
		RearBearingCorrection: 180,
		Deobfuscate:           cfg.Deobfuscate,
		RemoveOutliers:        cfg.RemoveOutliers,
		MergeDuplicates:       cfg.MergeDuplicates,
		WriteGPX:              cfg.WriteGPX,
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
