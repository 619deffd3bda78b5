package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"llamad/internal/common/fsutil"
	"llamad/internal/config"
	"llamad/internal/controller"
	"llamad/internal/engine"
	"llamad/internal/httpapi"
)

func newServeCmd(opts *globalOpts) *cobra.Command {
	var (
		ef    engineFlags
		addr  string
		model string
		cors  []string
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP server",
		Example: "  llamad serve --addr :8080 --models-dir ~/models/llm --model tinyllama.Q4_K_M.gguf",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, &ef)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("addr") {
				cfg.Addr = addr
			}
			if fs.Changed("model") {
				cfg.Model = model
			}
			if fs.Changed("cors-origins") {
				cfg.CORSOrigins = cors
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, cfg)
		},
	}
	ef.register(cmd.Flags())
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults LLAMAD_ADDR or :8080)")
	cmd.Flags().StringVar(&model, "model", "", "Model id or path to load at startup")
	cmd.Flags().StringSliceVar(&cors, "cors-origins", nil, "Allowed CORS origins; empty disables CORS")
	return cmd
}

func serve(ctx context.Context, opts *globalOpts, cfg config.Config) error {
	log := newLogger(opts, cfg.LogLevel)
	if !engine.Built {
		log.Warn().Msg("built without the 'llama' tag; model loads will fail")
	}
	if dir, err := fsutil.ExpandHome(cfg.ModelsDir); err == nil {
		if ok, _ := fsutil.IsDir(dir); !ok {
			log.Warn().Str("models_dir", dir).Msg("models directory not found; /models will be empty")
		}
	}

	ctrl := controller.New(controllerConfig(cfg, &log))
	svc := httpapi.ControllerService{Controller: ctrl, ModelsDir: cfg.ModelsDir}

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("llamad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Model != "" {
		g.Go(func() error {
			path := resolveModel(cfg.ModelsDir, cfg.Model)
			if err := ctrl.Load(gctx, path); err != nil {
				// The server stays up; /readyz reports the model as missing.
				log.Error().Err(err).Str("model", cfg.Model).Msg("preload failed")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), ctrl.Shutdown(sctx))
	})
	return g.Wait()
}
