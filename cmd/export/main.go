// Command export burns annotations into media files for download. It reads
// a YAML job list, renders each still image or annotated video frame, and
// writes PNG output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"media-markup/internal/annotation"
	"media-markup/internal/export"
	"media-markup/internal/ink"
	"media-markup/internal/media"
	"media-markup/internal/version"
)

// defaultConcurrency bounds parallel jobs; video decoding is memory-heavy.
const defaultConcurrency = 4

// Config is the export job list.
type Config struct {
	OutputDir string `yaml:"output_dir"`
	Jobs      []Job  `yaml:"jobs"`
}

// Job pairs one media file with its annotation data.
type Job struct {
	Media       string `yaml:"media"`
	Annotations string `yaml:"annotations"`
	Ink         string `yaml:"ink,omitempty"`
}

func main() {
	configPath := flag.String("config", "export.yaml", "Path to export job config")
	envFile := flag.String("env", "", "Optional .env file to load")
	concurrency := flag.Int("jobs", defaultConcurrency, "Maximum parallel jobs")
	showVersion := flag.Bool("version", false, "Print build information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Jobs) == 0 {
		fmt.Fprintln(os.Stderr, "No jobs in config")
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output dir: %v\n", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	for _, job := range cfg.Jobs {
		job := job
		g.Go(func() error {
			if err := runJob(ctx, cfg.OutputDir, job, log); err != nil {
				return fmt.Errorf("job %s: %w", job.Media, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	log.Info("export complete", "jobs", len(cfg.Jobs), "output", cfg.OutputDir)
}

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "export-out"
	}
	return cfg, nil
}

func runJob(ctx context.Context, outputDir string, job Job, log *slog.Logger) error {
	list, err := loadAnnotations(job.Annotations)
	if err != nil {
		return err
	}

	var doc ink.Document
	if job.Ink != "" {
		data, err := os.ReadFile(job.Ink)
		if err != nil {
			return fmt.Errorf("read ink document: %w", err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse ink document: %w", err)
		}
	}

	if isVideo(job.Media) {
		return exportVideo(ctx, outputDir, job.Media, list, log)
	}
	return exportImage(outputDir, job.Media, list, doc)
}

func loadAnnotations(path string) ([]annotation.Annotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	var list []annotation.Annotation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}
	return list, nil
}

func isVideo(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return true
	}
	return false
}

func exportImage(outputDir, mediaPath string, list []annotation.Annotation, doc ink.Document) error {
	rgba, frame, err := media.LoadImage(mediaPath)
	if err != nil {
		return err
	}

	export.DrawAnnotations(rgba, list, frame)
	export.DrawInk(rgba, doc)

	out := filepath.Join(outputDir, outputName(mediaPath, ""))
	return writePNG(out, rgba)
}

func exportVideo(ctx context.Context, outputDir, mediaPath string, list []annotation.Annotation, log *slog.Logger) error {
	src, err := media.OpenVideo(mediaPath)
	if err != nil {
		return err
	}
	defer src.Close()

	frames, err := export.ExtractAnnotatedFrames(ctx, src, list, log)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		name := outputName(mediaPath, fmt.Sprintf("_%07.2fs", frame.Timestamp))
		if err := writePNG(filepath.Join(outputDir, name), frame.Image); err != nil {
			return err
		}
	}
	return nil
}

func outputName(mediaPath, suffix string) string {
	base := filepath.Base(mediaPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + suffix + "_annotated.png"
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
