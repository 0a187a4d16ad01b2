package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/edc22osm/viofo2jpg/internal/domain/port"
	"github.com/edc22osm/viofo2jpg/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessJobUseCase is the service-mode entry point: it consumes a
// geotag request message, downloads the video, runs the geotagging
// pipeline and uploads the resulting image archive.
type ProcessJobUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	geotagger *GeotagUseCase
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type ProcessJobConfig struct {
	TempDir    string
	MaxRetries int
}

func NewProcessJobUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	geotagger *GeotagUseCase,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessJobConfig,
) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		repo:      repo,
		storage:   storage,
		geotagger: geotagger,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

func (uc *ProcessJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessJobUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.GeotagRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		// First delivery for this id, register the job before working.
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("creating job record failed", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		// A transient lookup failure nacks for redelivery; creating a
		// fresh record here would reset the attempt count.
		log.Error("job lookup failed", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.processJobPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("job_total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ProcessJobUseCase) processJobPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.GeotagRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, filepath.Base(msg.VideoKey))
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Geotag into a per-job output directory.
	imagesDir := filepath.Join(workDir, "images")
	runner := uc.geotagger.withOutputDir(imagesDir)
	summary, err := runner.Run(ctx, []string{videoPath})
	if err != nil {
		log.Error("geotag pipeline failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "geotag: "+err.Error(), log)
	}
	if summary.Files == 0 {
		errMsg := "geotag: source video unparseable"
		if len(summary.Warnings) > 0 {
			errMsg = "geotag: " + summary.Warnings[0]
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	imagePaths, err := collectImages(imagesDir)
	if err != nil {
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "collect_images: "+err.Error(), log)
	}

	arStart := time.Now()
	ctx3, spanAr := tracer.Start(ctx, "create_archive")
	archivePath := filepath.Join(workDir, "images.zip")
	if err := uc.archiver.CreateArchive(ctx3, imagePaths, archivePath); err != nil {
		spanAr.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_archive: "+err.Error(), log)
	}
	spanAr.End()
	metrics.StageDuration.WithLabelValues("archive").Observe(time.Since(arStart).Seconds())

	upStart := time.Now()
	ctx4, spanUp := tracer.Start(ctx, "upload_archive")
	imagesKey := fmt.Sprintf("%s/images_%s.zip", msg.UserID, job.ID.String())
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_archive: "+err.Error(), log)
	}
	archiveStat, _ := archiveFile.Stat()
	if err := uc.storage.UploadArchive(ctx4, imagesKey, archiveFile, archiveStat.Size()); err != nil {
		archiveFile.Close()
		spanUp.End()
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}
	archiveFile.Close()
	spanUp.End()
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	videoDuration := float64(summary.FramesPlanned) * uc.geotagger.cfg.FrameInterval.Seconds()
	job.MarkCompleted(imagesKey, summary.FramesWritten, summary.FixesDecoded, videoDuration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", summary.FramesWritten),
		zap.Int("fix_count", summary.FixesDecoded),
		zap.String("images_key", imagesKey),
	)

	return nil
}

func (uc *ProcessJobUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.GeotagRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessJobUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.GeotagRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ProcessJobUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.GeotagStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		ImagesKey:    job.ImagesKey,
		FrameCount:   job.FrameCount,
		FixCount:     job.FixCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// collectImages walks the pipeline output directory and lists every
// produced file, including GPX sidecars, in lexical order.
func collectImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images produced under %s", dir)
	}
	return paths, nil
}
