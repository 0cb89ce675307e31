package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dudu/blazelive/internal/config"
	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/inference"
	"github.com/dudu/blazelive/internal/pipeline"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfgPath string
	// cfg is the merged file, environment and flag configuration
	cfg config.Config
	// flagCfg receives flag values; only flags the user set are copied onto cfg
	flagCfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:     "blazelive",
	Short:   "Two-stage Blaze hand, face and pose landmark detection",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = mergeFlags(cmd.Flags(), loaded)
		if err := cfg.Validate(); err != nil {
			return err
		}

		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		}

		if cfg.Domains != "" {
			names, err := domain.LoadOverlay(cfg.Domains)
			if err != nil {
				return err
			}
			log.WithField("domains", names).Info("loaded domain overlay")
		}
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "YAML settings file")
	pf.StringVarP(&flagCfg.Blaze, "blaze", "b", flagCfg.Blaze, "Application (hand, face, pose)")
	pf.StringVarP(&flagCfg.Model1, "model1", "m", "", "Path of blaze detector model (default: domain default)")
	pf.StringVarP(&flagCfg.Model2, "model2", "n", "", "Path of blaze landmark model (default: domain default)")
	pf.StringVar(&flagCfg.Backend, "backend", flagCfg.Backend, "Inference backend: onnx or coreml")
	pf.IntVar(&flagCfg.Threads, "threads", 0, "Intra-op threads per model (0: runtime default)")
	pf.StringVar(&flagCfg.ORTLib, "ort-lib", "", "onnxruntime shared library (default: $"+config.EnvORTLib+" or "+inference.DefaultLibraryPath+")")
	pf.StringVar(&flagCfg.Domains, "domains", "", "YAML file with extra or overridden domain records")
	pf.Float32Var(&flagCfg.MinScore, "min-score", 0, "Detection score threshold (0: domain default)")
	pf.StringVar(&flagCfg.DatabaseURL, "db", "", "PostgreSQL connection string (default: $"+config.EnvDBURL+")")
	pf.BoolVarP(&flagCfg.Debug, "debug", "d", false, "Enable debug output")
	pf.BoolVarP(&flagCfg.Profile, "profile", "z", false, "Enable profiling output")
}

// mergeFlags copies every flag the user set over the loaded configuration
func mergeFlags(flags *pflag.FlagSet, c config.Config) config.Config {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("blaze", func() { c.Blaze = flagCfg.Blaze })
	set("model1", func() { c.Model1 = flagCfg.Model1 })
	set("model2", func() { c.Model2 = flagCfg.Model2 })
	set("backend", func() { c.Backend = flagCfg.Backend })
	set("threads", func() { c.Threads = flagCfg.Threads })
	set("ort-lib", func() { c.ORTLib = flagCfg.ORTLib })
	set("domains", func() { c.Domains = flagCfg.Domains })
	set("min-score", func() { c.MinScore = flagCfg.MinScore })
	set("db", func() { c.DatabaseURL = flagCfg.DatabaseURL })
	set("debug", func() { c.Debug = flagCfg.Debug })
	set("profile", func() { c.Profile = flagCfg.Profile })
	set("camera", func() { c.Camera.Source = flagCfg.Camera.Source })
	set("image", func() { c.StillImage = flagCfg.StillImage })
	set("capture-dir", func() { c.CaptureDir = flagCfg.CaptureDir })
	set("addr", func() { c.Server.Addr = flagCfg.Server.Addr })
	return c
}

// initRuntime starts onnxruntime and returns its shutdown
func initRuntime() (func(), error) {
	if err := inference.Initialize(cfg.ORTLib); err != nil {
		return nil, err
	}
	return func() {
		if err := inference.Shutdown(); err != nil {
			log.Warnf("onnxruntime shutdown: %v", err)
		}
	}, nil
}

// newPipeline builds the pipeline for one domain from cfg. The model paths
// only apply to the domain selected with --blaze.
func newPipeline(name string) (*pipeline.Pipeline, error) {
	dc, err := domain.Lookup(name)
	if err != nil {
		return nil, err
	}

	pc := pipeline.Config{
		Domain:            dc,
		Backend:           pipeline.Backend(cfg.Backend),
		Threads:           cfg.Threads,
		PresenceThreshold: cfg.PresenceThreshold,
	}
	if dc.Name == domain.Name(strings.ToLower(cfg.Blaze)) {
		pc.DetectorModelPath = cfg.Model1
		pc.LandmarkModelPath = cfg.Model2
	}

	log.WithFields(log.Fields{
		"domain":  name,
		"backend": cfg.Backend,
	}).Info("loading models")

	p, err := pipeline.New(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipeline: %w", name, err)
	}
	if cfg.MinScore > 0 {
		p.SetMinScore(cfg.MinScore)
	}
	if cfg.Debug {
		p.SetHooks(pipeline.LogHooks{})
	}
	return p, nil
}
