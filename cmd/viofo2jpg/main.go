package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/edc22osm/viofo2jpg/internal/infra/config"
	"github.com/edc22osm/viofo2jpg/internal/infra/exiftool"
	"github.com/edc22osm/viofo2jpg/internal/infra/ffmpeg"
	"github.com/edc22osm/viofo2jpg/internal/usecase"
	"github.com/edc22osm/viofo2jpg/pkg/logger"
	"github.com/spf13/pflag"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".ts":  true,
}

func main() {
	var (
		output        = pflag.StringP("output", "o", ".", "output directory for extracted images")
		cropSpec      = pflag.String("crop", "", "crop rectangle W:H:X:Y applied to every frame")
		cropFrontSpec = pflag.String("crop-front", "", "crop rectangle for front camera files, overrides --crop")
		cropRearSpec  = pflag.String("crop-rear", "", "crop rectangle for rear camera files, overrides --crop")
		arrange       = pflag.Bool("arrange", false, "place images in one directory per continuous sequence")
		noSkip        = pflag.Bool("no-skip", false, "disable the minimum travel distance filter")
		minDistance   = pflag.Float64("min-distance", 5, "minimum travel distance in meters between kept frames")
		interval      = pflag.Duration("interval", time.Second, "frame sampling interval")
		maxSkew       = pflag.Duration("max-skew", time.Second, "maximum clock difference when matching a fix to a frame")
		gap           = pflag.Duration("gap", 30*time.Second, "time gap that starts a new sequence")
		deobfuscate   = pflag.Bool("deobfuscate", false, "undo firmware coordinate obfuscation")
		outliers      = pflag.Bool("remove-outliers", false, "drop fixes far from the track's median position")
		duplicates    = pflag.Bool("merge-duplicates", false, "merge fixes sharing the same timestamp")
		writeGPX      = pflag.Bool("gpx", false, "write a GPX sidecar per source file")
		noDisplace    = pflag.Bool("no-bearing-displace", false, "do not displace rear camera positions behind the vehicle")
		ffmpegPath    = pflag.String("ffmpeg", "", "path to the ffmpeg binary")
		ffprobePath   = pflag.String("ffprobe", "", "path to the ffprobe binary")
		exiftoolPath  = pflag.String("exiftool", "", "path to the exiftool binary")
		workers       = pflag.Int("workers", 2, "number of sequences rendered concurrently")
		logLevel      = pflag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <video|glob|directory>...\n\nFlags:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(*logLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	crop, err := config.ParseCrop(*cropSpec)
	fatalOnErr(err, "parse --crop")
	cropFront, err := config.ParseCrop(*cropFrontSpec)
	fatalOnErr(err, "parse --crop-front")
	cropRear, err := config.ParseCrop(*cropRearSpec)
	fatalOnErr(err, "parse --crop-rear")
	if *minDistance < 0 {
		fatalOnErr(fmt.Errorf("%w: --min-distance must not be negative", entity.ErrInvalidConfig), "parse flags")
	}

	files, err := expandInputs(pflag.Args())
	fatalOnErr(err, "resolve inputs")
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no video files matched the given inputs")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uc := usecase.NewGeotagUseCase(
		ffmpeg.NewExtractor(*ffmpegPath, *ffprobePath, log),
		exiftool.NewTagger(*exiftoolPath, log),
		log,
		usecase.PipelineConfig{
			OutputDir:             *output,
			FrameInterval:         *interval,
			MaxSkew:               *maxSkew,
			MinDistance:           *minDistance,
			NoSkip:                *noSkip,
			Arrange:               *arrange,
			ContinuityGap:         *gap,
			Crop:                  crop,
			CropFront:             cropFront,
			CropRear:              cropRear,
			RearBearingCorrection: 180,
			NoBearingDisplace:     *noDisplace,
			Deobfuscate:           *deobfuscate,
			RemoveOutliers:        *outliers,
			MergeDuplicates:       *duplicates,
			WriteGPX:              *writeGPX,
			RenderWorkers:         *workers,
		},
	)

	summary, err := uc.Run(ctx, files)
	printSummary(summary)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run aborted:", err)
		os.Exit(1)
	}
	if summary.Files == 0 {
		os.Exit(1)
	}
}

// expandInputs resolves every argument to concrete video paths: literal
// files pass through, directories are scanned one level deep and
// anything else is treated as a glob. The result is deduplicated and
// sorted so runs are deterministic.
func expandInputs(args []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, fmt.Errorf("read directory %s: %w", arg, err)
			}
			for _, e := range entries {
				if !e.IsDir() && videoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
					add(filepath.Join(arg, e.Name()))
				}
			}
		case err == nil:
			add(arg)
		default:
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match %q", arg)
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

func printSummary(s *usecase.RunSummary) {
	fmt.Printf("files processed: %d (failed: %d)\n", s.Files, s.FilesFailed)
	fmt.Printf("fixes decoded:   %d\n", s.FixesDecoded)
	fmt.Printf("images written:  %d of %d sampled frames\n", s.FramesWritten, s.FramesPlanned)
	if s.FramesTooClose > 0 {
		fmt.Printf("too close:       %d frames under the distance threshold\n", s.FramesTooClose)
	}
	if s.FramesUntracked > 0 {
		fmt.Printf("untagged:        %d frames without a usable fix\n", s.FramesUntracked)
	}
	if s.FramesFailed > 0 {
		fmt.Printf("failed frames:   %d\n", s.FramesFailed)
	}
	for _, w := range s.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintln(os.Stderr, msg+":", err)
		os.Exit(1)
	}
}
