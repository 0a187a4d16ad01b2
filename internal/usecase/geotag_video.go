package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/edc22osm/viofo2jpg/internal/domain/port"
	"github.com/edc22osm/viofo2jpg/internal/geo"
	"github.com/edc22osm/viofo2jpg/internal/gpx"
	"github.com/edc22osm/viofo2jpg/internal/infra/metrics"
	"github.com/edc22osm/viofo2jpg/internal/novatek"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PipelineConfig is the run-wide configuration threaded through the
// pipeline; there is no package-level mutable state.
type PipelineConfig struct {
	OutputDir     string
	FrameInterval time.Duration
	MaxSkew       time.Duration
	MinDistance   float64
	NoSkip        bool
	Arrange       bool
	ContinuityGap time.Duration

	Crop      entity.CropRect
	CropFront entity.CropRect
	CropRear  entity.CropRect

	// RearBearingCorrection is added to the bearing of rear-camera frames
	// (typically 180), with the position displaced two meters behind
	// unless NoBearingDisplace is set.
	RearBearingCorrection float64
	NoBearingDisplace     bool

	Deobfuscate     bool
	RemoveOutliers  bool
	MergeDuplicates bool
	WriteGPX        bool

	// RenderWorkers bounds the number of sequence groups rendered
	// concurrently. Groups write to disjoint output paths.
	RenderWorkers int
}

func (c *PipelineConfig) applyDefaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = time.Second
	}
	if c.MaxSkew <= 0 {
		c.MaxSkew = time.Second
	}
	if c.ContinuityGap <= 0 {
		c.ContinuityGap = 30 * time.Second
	}
	if c.RenderWorkers <= 0 {
		c.RenderWorkers = 1
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
}

// RunSummary reports what a pipeline run did, including everything that
// was skipped and why. Partial output is always usable.
type RunSummary struct {
	Files           int
	FilesFailed     int
	FixesDecoded    int
	FramesPlanned   int
	FramesWritten   int
	FramesTooClose  int
	FramesUntracked int
	FramesFailed    int
	Warnings        []string
}

// GeotagUseCase runs the full pipeline for a set of source videos:
// extract the embedded GPS track, correlate it with sampled frames,
// segment into sequences and delegate image extraction and tagging to the
// external collaborators.
type GeotagUseCase struct {
	extractor port.FrameExtractor
	tagger    port.GeoTagger
	logger    *zap.Logger
	cfg       PipelineConfig
}

func NewGeotagUseCase(extractor port.FrameExtractor, tagger port.GeoTagger, logger *zap.Logger, cfg PipelineConfig) *GeotagUseCase {
	cfg.applyDefaults()
	return &GeotagUseCase{
		extractor: extractor,
		tagger:    tagger,
		logger:    logger,
		cfg:       cfg,
	}
}

// withOutputDir returns a shallow copy writing into dir. Used by the
// service mode to give each job an isolated output tree.
func (uc *GeotagUseCase) withOutputDir(dir string) *GeotagUseCase {
	cp := *uc
	cp.cfg.OutputDir = dir
	return &cp
}

// Run processes the given source files in order. Per-file errors are
// recorded in the summary and never abort the run.
func (uc *GeotagUseCase) Run(ctx context.Context, files []string) (*RunSummary, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "GeotagUseCase.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("run.files", len(files)))

	summary := &RunSummary{}
	var analyzed []FileFrames

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ff, report, err := uc.analyzeFile(ctx, path)
		for _, w := range report.Warnings {
			summary.Warnings = append(summary.Warnings, path+": "+w)
		}
		summary.FixesDecoded += report.Decoded
		if err != nil {
			uc.logger.Warn("skipping unparseable file", zap.String("file", path), zap.Error(err))
			summary.FilesFailed++
			summary.Warnings = append(summary.Warnings, err.Error())
			metrics.FilesProcessedTotal.WithLabelValues("skipped").Inc()
			continue
		}
		summary.Files++
		summary.FramesPlanned += len(ff.Samples)
		metrics.FilesProcessedTotal.WithLabelValues("ok").Inc()
		analyzed = append(analyzed, ff)
	}

	seg := Segmenter{
		Arrange:       uc.cfg.Arrange,
		ByRole:        uc.cfg.Arrange,
		ContinuityGap: uc.cfg.ContinuityGap,
	}
	groups := seg.Group(analyzed)

	uc.renderGroups(ctx, groups, summary)

	uc.logger.Info("run finished",
		zap.Int("files", summary.Files),
		zap.Int("files_failed", summary.FilesFailed),
		zap.Int("frames_written", summary.FramesWritten),
		zap.Int("frames_too_close", summary.FramesTooClose),
		zap.Int("frames_failed", summary.FramesFailed),
		zap.Int("warnings", len(summary.Warnings)),
	)
	return summary, ctx.Err()
}

func (uc *GeotagUseCase) analyzeFile(ctx context.Context, path string) (FileFrames, novatek.Report, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "analyze_file")
	defer span.End()
	span.SetAttributes(attribute.String("file", path))

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	}()

	log := uc.logger.With(zap.String("file", path))

	f, err := os.Open(path)
	if err != nil {
		return FileFrames{}, novatek.Report{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return FileFrames{}, novatek.Report{}, fmt.Errorf("stat %s: %w", path, err)
	}

	track, report, err := novatek.ExtractTrack(f, st.Size(), path, novatek.Options{
		Deobfuscate:     uc.cfg.Deobfuscate,
		RemoveOutliers:  uc.cfg.RemoveOutliers,
		MergeDuplicates: uc.cfg.MergeDuplicates,
	})
	if err != nil {
		return FileFrames{}, report, err
	}
	metrics.FixesDecodedTotal.Add(float64(report.Decoded))

	if track.Empty() {
		log.Warn("no valid GPS fixes, frames will be untagged")
	} else {
		log.Info("track extracted",
			zap.Int("fixes", len(track.Fixes)),
			zap.Int("skipped_records", report.Skipped),
			zap.Time("video_start", track.VideoStart),
		)
	}

	role := entity.DetectRole(path)
	frames := uc.sampleFrames(ctx, track, path, role, &report)

	if uc.cfg.WriteGPX && !track.Empty() {
		if err := uc.writeGPXSidecar(path, track); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("gpx sidecar: %v", err))
		}
	}

	return FileFrames{File: path, Role: role, Samples: frames}, report, nil
}

func (uc *GeotagUseCase) sampleFrames(ctx context.Context, track entity.Track, path string, role entity.CameraRole, report *novatek.Report) []entity.FrameSample {
	duration, err := uc.extractor.VideoDuration(ctx, path)
	if err != nil || duration <= 0 {
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("video duration probe: %v", err))
		}
		// Fall back to the track's own span.
		if !track.Empty() {
			duration = track.End().Sub(track.VideoStart).Seconds() + uc.cfg.FrameInterval.Seconds()
		}
	}
	if duration <= 0 {
		report.Warnings = append(report.Warnings, "video duration unknown, no frames sampled")
		return nil
	}

	n := int(duration / uc.cfg.FrameInterval.Seconds())
	sampler := Sampler{
		MaxSkew:     uc.cfg.MaxSkew,
		MinDistance: uc.cfg.MinDistance,
		NoSkip:      uc.cfg.NoSkip,
	}
	state := &SampleState{}
	crop := uc.resolveCrop(role)

	samples := make([]entity.FrameSample, 0, n)
	for i := 0; i < n; i++ {
		offset := time.Duration(i) * uc.cfg.FrameInterval
		var ts time.Time
		var fix *entity.GpsFix
		if !track.VideoStart.IsZero() {
			ts = track.VideoStart.Add(offset)
			fix = sampler.Resolve(track, ts)
		}

		accepted := sampler.Accept(state, fix)
		if accepted && fix != nil && role == entity.RoleRear && uc.cfg.RearBearingCorrection != 0 {
			fix = uc.correctRearFix(*fix)
		}
		if !accepted {
			metrics.FramesSkippedTotal.WithLabelValues("too_close").Inc()
		}

		samples = append(samples, entity.FrameSample{
			SourceFile: path,
			Role:       role,
			Index:      i,
			Offset:     offset,
			Timestamp:  ts,
			Crop:       crop,
			Fix:        fix,
			Accepted:   accepted,
		})
	}
	return samples
}

// correctRearFix rotates a rear-camera fix's bearing and displaces its
// position two meters behind so front and rear tracks do not collide on
// the mapping platform.
func (uc *GeotagUseCase) correctRearFix(fix entity.GpsFix) *entity.GpsFix {
	if !uc.cfg.NoBearingDisplace {
		fix.Latitude, fix.Longitude = geo.DisplaceBehind(
			fix.Latitude, fix.Longitude, fix.Bearing, uc.cfg.RearBearingCorrection)
	}
	fix.Bearing = geo.NormalizeBearing(fix.Bearing + uc.cfg.RearBearingCorrection)
	return &fix
}

// resolveCrop applies the crop precedence: per-role crop overrides the
// global crop, which overrides no crop.
func (uc *GeotagUseCase) resolveCrop(role entity.CameraRole) entity.CropRect {
	switch role {
	case entity.RoleFront:
		if !uc.cfg.CropFront.IsZero() {
			return uc.cfg.CropFront
		}
	case entity.RoleRear:
		if !uc.cfg.CropRear.IsZero() {
			return uc.cfg.CropRear
		}
	}
	return uc.cfg.Crop
}

type renderResult struct {
	written   int
	failed    int
	untracked int
	warnings  []string
}

func (uc *GeotagUseCase) renderGroups(ctx context.Context, groups []entity.SequenceGroup, summary *RunSummary) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "render_groups")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("render").Observe(time.Since(start).Seconds())
	}()

	work := make(chan entity.SequenceGroup)
	results := make(chan renderResult)

	var wg sync.WaitGroup
	for w := 0; w < uc.cfg.RenderWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range work {
				results <- uc.renderGroup(ctx, g)
			}
		}()
	}
	go func() {
		for _, g := range groups {
			work <- g
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	for res := range results {
		summary.FramesWritten += res.written
		summary.FramesFailed += res.failed
		summary.FramesUntracked += res.untracked
		summary.Warnings = append(summary.Warnings, res.warnings...)
	}

	for _, g := range groups {
		for _, sm := range g.Samples {
			if !sm.Accepted {
				summary.FramesTooClose++
			}
		}
	}
}

func (uc *GeotagUseCase) renderGroup(ctx context.Context, g entity.SequenceGroup) renderResult {
	var res renderResult
	dir := filepath.Join(uc.cfg.OutputDir, g.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		res.warnings = append(res.warnings, fmt.Sprintf("create %s: %v", dir, err))
		return res
	}

	log := uc.logger.With(zap.String("sequence", g.Dir))

	for _, sm := range g.Samples {
		if !sm.Accepted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res
		}

		out := filepath.Join(dir, frameFileName(sm))
		if err := uc.extractor.ExtractFrame(ctx, sm.SourceFile, sm.Offset, sm.Crop, out); err != nil {
			log.Warn("frame extraction failed, skipping frame",
				zap.String("file", sm.SourceFile),
				zap.Duration("offset", sm.Offset),
				zap.Error(err),
			)
			res.failed++
			metrics.FramesSkippedTotal.WithLabelValues("extract_failed").Inc()
			continue
		}

		if sm.Fix != nil {
			if err := uc.tagger.WriteGeoTag(ctx, out, *sm.Fix); err != nil {
				log.Warn("geotagging failed, skipping frame",
					zap.String("image", out),
					zap.Error(err),
				)
				os.Remove(out)
				res.failed++
				metrics.FramesSkippedTotal.WithLabelValues("tag_failed").Inc()
				continue
			}
		} else {
			res.untracked++
		}

		res.written++
		metrics.FramesExtractedTotal.Inc()
	}
	return res
}

func (uc *GeotagUseCase) writeGPXSidecar(path string, track entity.Track) error {
	if err := os.MkdirAll(uc.cfg.OutputDir, 0755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(uc.cfg.OutputDir, base+".gpx")
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return gpx.Write(f, base, track)
}

func frameFileName(sm entity.FrameSample) string {
	base := strings.TrimSuffix(filepath.Base(sm.SourceFile), filepath.Ext(sm.SourceFile))
	return fmt.Sprintf("%s_%04d.jpg", base, sm.Index+1)
}
