package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/logging"
	httpgw "github.com/aretw0/weave/pkg/adapters/http"
	redisadapter "github.com/aretw0/weave/pkg/adapters/redis"
	"github.com/aretw0/weave/pkg/adapters/socketio"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/observability"
)

var watchCmd = &cobra.Command{
	Use:   "watch <graph>",
	Short: "Open a graph session and tail live node statuses",
	Long: `Watch loads the named graph, connects the live status channel and
prints every status transition until interrupted. When a metrics address is
configured, Prometheus metrics are served alongside.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		levelOverride, _ := cmd.Flags().GetString("log-level")
		return runWatch(cfgPath, levelOverride, args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cfgPath, levelOverride, graph string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if levelOverride != "" {
		level = levelOverride
	}
	logger := logging.New(logging.ParseLevel(level))

	var gwOpts []httpgw.Option
	if cfg.Server.APIKey != "" {
		gwOpts = append(gwOpts, httpgw.WithAPIKey(cfg.Server.APIKey))
	}
	gateway := httpgw.NewGateway(cfg.Server.URL, gwOpts...)

	out := termenv.NewOutput(os.Stdout)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hooks := tailHooks(out, metrics.Hooks())

	opts := []weave.Option{
		weave.WithLogger(logger),
		weave.WithLifecycleHooks(hooks),
		weave.WithDebounce(cfg.Debounce()),
		weave.WithPollInterval(cfg.PollBase(), cfg.PollMax()),
	}

	if cfg.Socket.URL != "" {
		transport, err := socketio.NewTransport(cfg.Socket.URL,
			socketio.WithNamespace(cfg.Socket.Namespace),
			socketio.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to configure socket transport: %w", err)
		}
		opts = append(opts, weave.WithTransport(transport))
	} else {
		logger.Warn("no socket url configured, live updates disabled")
	}

	if cfg.Redis.Addr != "" {
		cache := redisadapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer cache.Close()
		opts = append(opts, weave.WithSnapshotCache(cache))
	}

	client, err := weave.New(gateway, opts...)
	if err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: r}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			serverErrors <- metricsServer.ListenAndServe()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = client.Open(ctx, graph)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open graph %q: %w", graph, err)
	}
	defer client.Close()

	snap := client.Store().Snapshot()
	fmt.Printf("watching %s (version %s, %d nodes, %d edges)\n",
		snap.Name, snap.Version, len(snap.Nodes), len(snap.Edges))
	for _, node := range snap.Nodes {
		fmt.Printf("  %-24s %-12s %s\n", node.Title, node.Kind, paintStatus(out, node.Status))
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("metrics server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown started", "signal", sig.String())
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				metricsServer.Close()
			}
		}
	}
	return nil
}

// tailHooks prints status and mode transitions on top of the metrics hooks.
func tailHooks(out *termenv.Output, base domain.LifecycleHooks) domain.LifecycleHooks {
	onApplied := base.OnStatusApplied
	onMode := base.OnModeChange
	onResult := base.OnSaveResult

	base.OnStatusApplied = func(e *domain.StatusEvent) {
		if onApplied != nil {
			onApplied(e)
		}
		fmt.Printf("%s node %s updated (%s)\n",
			e.Timestamp.Format(time.TimeOnly), e.NodeID, e.Source)
	}
	base.OnModeChange = func(e *domain.ModeEvent) {
		if onMode != nil {
			onMode(e)
		}
		if e.Mode == domain.ModeLive {
			fmt.Println(out.String("channel live").Foreground(termenv.ANSIGreen))
			return
		}
		fmt.Println(out.String(fmt.Sprintf("channel degraded (level %d, polling every %s)",
			e.Level, e.PollInterval)).Foreground(termenv.ANSIYellow))
	}
	base.OnSaveResult = func(e *domain.SaveEvent) {
		if onResult != nil {
			onResult(e)
		}
		if e.Outcome == domain.SaveOutcomeFailure {
			fmt.Println(out.String(fmt.Sprintf("save failed: %v", e.Err)).Foreground(termenv.ANSIRed))
		}
	}
	return base
}

func paintStatus(out *termenv.Output, s domain.Status) string {
	styled := out.String(string(s))
	switch {
	case s == domain.StatusReady:
		styled = styled.Foreground(termenv.ANSIGreen)
	case s.IsError():
		styled = styled.Foreground(termenv.ANSIRed)
	case s == domain.StatusProvisioning || s == domain.StatusDeprovisioning:
		styled = styled.Foreground(termenv.ANSIYellow)
	}
	return styled.String()
}
