package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/camera"
	"github.com/dudu/blazelive/internal/pipeline"
	"github.com/dudu/blazelive/internal/snapshot"
	"github.com/dudu/blazelive/internal/ui"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the interactive camera demo",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLive(cmd.Context())
	},
}

func init() {
	liveCmd.Flags().StringVarP(&flagCfg.Camera.Source, "camera", "c", "", "Camera index, device or video file (default: first usb camera)")
	liveCmd.Flags().StringVarP(&flagCfg.StillImage, "image", "i", "", "Still image shown when 't' is pressed")
	liveCmd.Flags().StringVar(&flagCfg.CaptureDir, "capture-dir", flagCfg.CaptureDir, "Directory for 'w' captures")
	rootCmd.AddCommand(liveCmd)
}

// scorer is implemented by detectors that keep the scores of the last frame
type scorer interface {
	Scores() []float32
	MinScore() float32
}

func runLive(ctx context.Context) error {
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

	cam, err := camera.Open(ctx, cfg.Camera.Source, cfg.Camera.Width, cfg.Camera.Height)
	if err != nil {
		return err
	}
	defer cam.Close()
	log.Infof("Camera %s opened: %dx%d", cam.Source(), cam.Width(), cam.Height())

	var still gocv.Mat
	haveStill := cfg.StillImage != ""
	if haveStill {
		still = gocv.IMRead(cfg.StillImage, gocv.IMReadColor)
		if still.Empty() {
			return fmt.Errorf("failed to read image %s", cfg.StillImage)
		}
		defer still.Close()
	}

	writer, err := snapshot.NewWriter(cfg.CaptureDir, dc.Landmark.Type)
	if err != nil {
		return err
	}

	title := dc.Title + " Demo"
	window := ui.NewWindow(title)
	defer window.Close()
	debugWin := ui.NewToggleable(title + ui.DebugTitleSuffix)
	defer debugWin.Close()
	scoresWin := ui.NewToggleable(ui.ScoresTitle)
	defer scoresWin.Close()

	sc, _ := p.Detector().(scorer)
	initial := dc.Detector.MinScore
	if sc != nil {
		initial = sc.MinScore()
	}
	window.AddThresholdTrackbar(initial)

	sess := &ui.Session{ShowFPS: true, Verbose: cfg.Debug, Profile: cfg.Profile}
	fps := ui.NewFPSCounter()

	fmt.Println(ui.KeyHelp)

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down...")
			return nil
		default:
		}

		if sess.UseImage && haveStill {
			still.CopyTo(&frame)
		} else if err := cam.Next(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("End of video")
				return nil
			}
			return err
		}

		if score, ok := window.Threshold(); ok {
			p.SetMinScore(score)
		}

		res, err := p.Process(frame)
		if err != nil {
			log.Warnf("frame %d: %v", sess.FrameCount, err)
			if sess.HandleKey(window.WaitKey(sess.WaitDelay())) == ui.EventQuit {
				return nil
			}
			continue
		}

		output := frame.Clone()
		ui.Annotate(&output, res, dc)

		fps.Tick()
		if msg := fps.Message(); sess.ShowFPS && msg != "" {
			ui.DrawFPS(&output, msg)
		}
		window.Show(output)

		var debugPane *gocv.Mat
		if sess.ShowDebug {
			pane := ui.DebugPane(res.DetectorInput, res.Patches, dc.Landmark.Resolution)
			debugWin.Show(pane)
			debugPane = &pane
		}
		if sess.ShowScores && sc != nil {
			plot := ui.ScoresPlot(sc.Scores(), sc.MinScore())
			scoresWin.Show(plot)
			plot.Close()
		}

		if sess.Verbose {
			log.WithFields(log.Fields{
				"frame":      sess.FrameCount,
				"detections": len(res.Detections),
				"landmarks":  len(res.Landmarks),
			}).Info("frame processed")
		}
		if sess.Profile {
			log.Info(p.LastTiming().Profile())
		}

		event := sess.HandleKey(window.WaitKey(sess.WaitDelay()))
		switch event {
		case ui.EventQuit:
			closeFrame(res, output, debugPane)
			return nil
		case ui.EventCapture:
			capture(writer, sess.FrameCount, frame, output, debugPane, snapshot.FromResult(string(dc.Name), sess.FrameCount, res))
		case ui.EventDebugToggled:
			if !sess.ShowDebug {
				debugWin.Close()
			}
		case ui.EventScoresToggled:
			if !sess.ShowScores {
				scoresWin.Close()
			}
		case ui.EventVerboseToggled:
			log.Infof("verbose = %v", sess.Verbose)
		case ui.EventProfileToggled:
			log.Infof("profile = %v", sess.Profile)
		}

		closeFrame(res, output, debugPane)
		sess.FrameCount++
	}
}

func capture(w *snapshot.Writer, frameNo int, input, output gocv.Mat, debug *gocv.Mat, rec snapshot.Record) {
	written, err := w.Capture(frameNo, input, output, debug, rec)
	if err != nil {
		log.Warnf("capture failed: %v", err)
		return
	}
	for _, name := range written {
		log.Infof("Captured %s", name)
	}
}

func closeFrame(res *pipeline.Result, output gocv.Mat, debug *gocv.Mat) {
	res.Close()
	output.Close()
	if debug != nil {
		debug.Close()
	}
}
