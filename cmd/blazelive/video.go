package main

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	"golang.org/x/term"

	"github.com/dudu/blazelive/internal/camera"
	"github.com/dudu/blazelive/internal/snapshot"
	"github.com/dudu/blazelive/internal/store"
	"github.com/dudu/blazelive/internal/ui"
)

var (
	videoOutput string
	videoStore  bool
)

var videoCmd = &cobra.Command{
	Use:   "video <file>",
	Short: "Process a video file frame by frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVideo(cmd.Context(), args[0])
	},
}

func init() {
	videoCmd.Flags().StringVarP(&videoOutput, "output", "o", "", "Write the annotated video here")
	videoCmd.Flags().BoolVar(&videoStore, "store", false, "Save per-frame results to PostgreSQL (--db)")
	rootCmd.AddCommand(videoCmd)
}

func runVideo(ctx context.Context, path string) error {
	shutdown, err := initRuntime()
	if err != nil {
		return err
	}
	defer shutdown()

	p, err := newPipeline(cfg.Blaze)
	if err != nil {
		return err
	}
	defer p.Close()
	dc := p.Domain()

	src, err := camera.NewCaptureWithResolution(path, camera.DefaultWidth, camera.DefaultHeight)
	if err != nil {
		return err
	}
	defer src.Close()

	var db *store.Store
	if videoStore {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("--store needs --db or $BLAZE_DB_URL")
		}
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Reset(ctx, path, string(dc.Name)); err != nil {
			return fmt.Errorf("failed to clear earlier results: %w", err)
		}
	}

	var writer *gocv.VideoWriter
	if videoOutput != "" {
		writer, err = gocv.VideoWriterFile(videoOutput, "mp4v", 30, src.Width(), src.Height(), true)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", videoOutput, err)
		}
		defer writer.Close()
	}

	total := src.FrameCount()
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Processing "+string(dc.Name)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(term.IsTerminal(int(os.Stderr.Fd()))),
	)
	defer bar.Finish()

	frame := gocv.NewMat()
	defer frame.Close()

	var processed, withDetections int
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !src.Read(&frame) || frame.Empty() {
			break
		}

		res, err := p.Process(frame)
		if err != nil {
			log.Warnf("frame %d: %v", n, err)
			bar.Add(1)
			continue
		}
		processed++
		if len(res.Detections) > 0 {
			withDetections++
		}

		if db != nil {
			if err := db.SaveFrame(ctx, path, snapshot.FromResult(string(dc.Name), n, res)); err != nil {
				res.Close()
				return err
			}
		}
		if writer != nil {
			out := frame.Clone()
			ui.Annotate(&out, res, dc)
			if err := writer.Write(out); err != nil {
				log.Warnf("frame %d: write failed: %v", n, err)
			}
			out.Close()
		}
		if cfg.Profile {
			log.Debug(p.LastTiming().Profile())
		}

		res.Close()
		bar.Add(1)
	}

	log.WithFields(log.Fields{
		"frames":          processed,
		"with_detections": withDetections,
	}).Info("video done")

	if db != nil {
		counts, err := db.DetectionCounts(ctx, path)
		if err != nil {
			return err
		}
		for detections, frames := range counts {
			log.Infof("  %d detections: %d frames", detections, frames)
		}
	}
	return nil
}
