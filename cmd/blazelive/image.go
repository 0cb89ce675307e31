package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/pipeline"
	"github.com/dudu/blazelive/internal/snapshot"
	"github.com/dudu/blazelive/internal/ui"
)

var (
	imageOutDir string
	imageShow   bool
)

var imageCmd = &cobra.Command{
	Use:   "image <file>...",
	Short: "Annotate still images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImages(args)
	},
}

func init() {
	imageCmd.Flags().StringVarP(&imageOutDir, "out", "o", "./annotated", "Output directory")
	imageCmd.Flags().BoolVar(&imageShow, "show", false, "Show each result until a key is pressed")
	rootCmd.AddCommand(imageCmd)
}

func runImages(paths []string) error {
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

	if err := os.MkdirAll(imageOutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var window *ui.Window
	if imageShow {
		window = ui.NewWindow(p.Domain().Title)
		defer window.Close()
	}

	for i, path := range paths {
		out, err := annotateImage(p, i, path)
		if err != nil {
			log.Warnf("%s: %v", path, err)
			continue
		}
		if window != nil {
			window.Show(out)
			window.WaitKey(0)
		}
		out.Close()
	}
	return nil
}

// annotateImage processes one file and writes the annotated copy plus its
// record. The returned Mat must be closed by the caller.
func annotateImage(p *pipeline.Pipeline, index int, path string) (gocv.Mat, error) {
	// imaging honours the EXIF orientation gocv.IMRead would ignore
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open image: %w", err)
	}
	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer frame.Close()

	res, err := p.Process(frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer res.Close()

	out := frame.Clone()
	ui.Annotate(&out, res, p.Domain())

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := filepath.Join(imageOutDir, base+"_"+p.Domain().Landmark.Type+".png")
	if ok := gocv.IMWrite(name, out); !ok {
		out.Close()
		return gocv.Mat{}, fmt.Errorf("failed to write %s", name)
	}

	data, err := snapshot.FromResult(string(p.Domain().Name), index, res).Marshal()
	if err != nil {
		out.Close()
		return gocv.Mat{}, err
	}
	if err := os.WriteFile(strings.TrimSuffix(name, ".png")+".msgpack", data, 0o644); err != nil {
		out.Close()
		return gocv.Mat{}, err
	}

	log.WithFields(log.Fields{
		"file":       path,
		"detections": len(res.Detections),
		"output":     name,
	}).Info("annotated")
	return out, nil
}
