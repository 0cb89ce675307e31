package main

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudu/blazelive/internal/pipeline"
	"github.com/dudu/blazelive/internal/server"
	"github.com/dudu/blazelive/internal/store"
)

var serveDomains string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve detection over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagCfg.Server.Addr, "addr", flagCfg.Server.Addr, "Listen address")
	serveCmd.Flags().StringVar(&serveDomains, "serve", "", "Comma separated domains to load (default: --blaze)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	shutdown, err := initRuntime()
	if err != nil {
		return err
	}
	defer shutdown()

	list := cfg.Blaze
	if serveDomains != "" {
		list = serveDomains
	}
	pipelines, err := loadPipelines(list, newPipeline)
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range pipelines {
			p.Close()
		}
	}()

	opts := server.Options{MaxUploadBytes: cfg.Server.MaxUploadMiB << 20}
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Recorder = db
	}

	srv := server.New(pipelines, opts)
	if opts.Recorder != nil {
		log.WithField("source", srv.RunSource()).Info("recording results to database")
	}
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// loadPipelines builds one pipeline per comma separated domain, keyed by the
// canonical domain name that routes /v1/{domain}/detect
func loadPipelines(list string, build func(string) (*pipeline.Pipeline, error)) (map[string]*pipeline.Pipeline, error) {
	pipelines := make(map[string]*pipeline.Pipeline)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, err := build(name)
		if err != nil {
			for _, loaded := range pipelines {
				loaded.Close()
			}
			return nil, err
		}
		key := string(p.Domain().Name)
		if _, dup := pipelines[key]; dup {
			p.Close()
			continue
		}
		pipelines[key] = p
	}
	if len(pipelines) == 0 {
		return nil, fmt.Errorf("no domains to serve in %q", list)
	}
	return pipelines, nil
}
