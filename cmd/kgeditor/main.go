package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/cmd"
	"github.com/gravitrone/kgeditor/internal/config"
	"github.com/gravitrone/kgeditor/internal/logging"
	"github.com/gravitrone/kgeditor/internal/nav"
	"github.com/gravitrone/kgeditor/internal/state"
	"github.com/gravitrone/kgeditor/internal/store"
	"github.com/gravitrone/kgeditor/internal/ui"
	"github.com/gravitrone/kgeditor/internal/views"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Force truecolor so hex colors render correctly
	// Must be set before any lipgloss style initialization
	os.Setenv("COLORTERM", "truecolor")
}

func newRootCmd() *cobra.Command {
	var open, mode string
	root := &cobra.Command{
		Use:   "kgeditor",
		Short: "kgeditor - knowledge graph instance editor",
		Long:  "kgeditor: browse, edit and link knowledge graph instances from the terminal.",
		RunE: func(c *cobra.Command, _ []string) error {
			start, err := startRoute(open, mode)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGTERM)
			defer stop()
			return runTUI(ctx, start)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVarP(&open, "open", "o", "", "open this instance id on start")
	root.Flags().StringVarP(&mode, "mode", "m", string(views.ModeView), "mode of the opened instance (view, edit, graph, raw)")

	root.AddCommand(cmd.LoginCmd())
	root.AddCommand(cmd.LogoutCmd())
	root.AddCommand(cmd.WorkspacesCmd())
	root.AddCommand(cmd.ShowCmd())
	root.AddCommand(cmd.GraphCmd())
	return root
}

// startRoute is the first location of the router.
func startRoute(id, mode string) (string, error) {
	if id == "" {
		return nav.Home, nil
	}
	m, ok := views.ParseMode(mode)
	if !ok || m == views.ModeCreate {
		return "", fmt.Errorf("unknown mode %q", mode)
	}
	return nav.InstancePath(m, id), nil
}

func runTUI(ctx context.Context, start string) error {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("not logged in. run 'kgeditor login' first.")
		}
		return err
	}
	if !isInteractive(os.Stdin) || !isInteractive(os.Stdout) {
		return errors.New("kgeditor needs an interactive terminal; use 'kgeditor show' or 'kgeditor graph' instead")
	}

	logger, logFile, err := logging.Open(config.Dir(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()

	db, err := state.Open(state.Config{Path: filepath.Join(config.Dir(), "state"), Logger: logger})
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	bridge := ui.NewBridge()
	ctrl, err := app.New(app.Deps{
		Client:  cmd.NewClient(cfg),
		Config:  cfg,
		State:   db,
		Router:  nav.NewRouter(start),
		Confirm: bridge.Confirm,
		Logger:  logger,
		Metrics: store.NewMetrics(reg),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	logger.Info("starting", "server", cfg.ServerURL, "route", start)
	if err := ui.Run(ctx, ctrl, bridge); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func isInteractive(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
