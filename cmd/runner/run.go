package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/taskrunner/internal/config"
	"github.com/oriys/taskrunner/internal/logging"
	"github.com/oriys/taskrunner/internal/metrics"
	"github.com/oriys/taskrunner/internal/observability"
	"github.com/oriys/taskrunner/internal/pidfile"
	"github.com/oriys/taskrunner/internal/reqqueue"
	"github.com/oriys/taskrunner/internal/runstatus"
	"github.com/oriys/taskrunner/internal/syncloop"
	"github.com/oriys/taskrunner/internal/taskrun"
)

func runCmd() *cobra.Command {
	var (
		logLevel      string
		logFormat     string
		debugAddr     string
		localOverride string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent's foreground sync loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if localOverride != "" {
				if err := config.ApplyLocalOverride(cfg, localOverride); err != nil {
					return fmt.Errorf("apply local override: %w", err)
				}
			}
			config.LoadFromEnv(cfg)
			if cmd.Flags().Changed("log-level") {
				cfg.Generic.LogLevel = logLevel
			}

			logging.InitStructured(logFormat, cfg.Generic.LogLevel)
			if cfg.Generic.LogFile != "" {
				if err := logging.SetOutputFile(cfg.Generic.LogFile); err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
			}

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:        os.Getenv("SF_TRACING_ENABLED") == "true",
				Exporter:       "otlp-http",
				Endpoint:       os.Getenv("SF_TRACING_ENDPOINT"),
				ServiceName:    "taskrunner",
				ServiceVersion: Version,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			metrics.InitPrometheus("taskrunner", nil)

			if err := pidfile.Write(cfg.Generic.PidFile); err != nil {
				return &configFatalError{err}
			}
			defer pidfile.Remove(cfg.Generic.PidFile)

			var overrideMu sync.Mutex
			if localOverride != "" {
				watcher, err := config.WatchLocalOverride(cfg, localOverride, &overrideMu, logging.Op())
				if err != nil {
					logging.Op().Warn("run: local override watch disabled", "error", err)
				} else {
					defer watcher.Close()
				}
			}

			queue, loop := wireAgent(cfg)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				queue.Run(ctx)
			}()

			var debugServer *http.Server
			if debugAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.PrometheusHandler())
				mux.Handle("/status", metrics.Global().JSONHandler())
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					w.Write([]byte("ok"))
				})
				debugServer = &http.Server{Addr: debugAddr, Handler: mux}
				go func() {
					if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Warn("run: debug listener stopped", "error", err)
					}
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

			loopDone := make(chan struct{})
			go func() {
				loop.Run(ctx)
				close(loopDone)
			}()

			logging.Op().Info("run: agent started", "control_center", cfg.ControlCenter.ServerBaseURL)

			select {
			case <-sigCh:
				logging.Op().Info("run: shutdown signal received")
				cancel()
				<-loopDone
			case <-loopDone:
				logging.Op().Info("run: sync loop exited (coordinator requested <exit/>)")
			}

			queue.Shutdown()
			wg.Wait()

			if debugServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				debugServer.Shutdown(shutdownCtx)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "operational log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "operational log format (text, json)")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", ":9090", "address for the /metrics, /status, and /healthz debug listener (empty disables it)")
	cmd.Flags().StringVar(&localOverride, "local-override", "", "optional runner.local.yaml path for per-machine parameter overrides")

	return cmd
}

// configFatalError marks a startup failure that should end the process
// with exit code 2: inability to load configuration, initialize the
// logger, or write the PID file.
type configFatalError struct{ cause error }

func (e *configFatalError) Error() string { return "config error: " + e.cause.Error() }
func (e *configFatalError) Unwrap() error { return e.cause }

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return nil, &configFatalError{fmt.Errorf("--config is required")}
	}
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, &configFatalError{err}
	}
	return cfg, nil
}

// wireAgent builds the agent's long-lived objects: the outbound request
// queue, the run-status slot, and the sync loop that drives them both.
func wireAgent(cfg *config.Config) (*reqqueue.Queue, *syncloop.Loop) {
	transport := &reqqueue.Transport{
		ServerBaseURL: cfg.ControlCenter.ServerBaseURL,
		TokenID:       cfg.ControlCenter.TokenID,
		TokenPass:     cfg.ControlCenter.TokenPass,
	}
	queue := reqqueue.New(transport, 0)

	env := taskrun.NewEnv(
		cfg.Output.ReportBaseDir,
		cfg.Output.ProductBaseDir,
		cfg.Output.ReportBaseURL,
		cfg.ControlCenter.ServerBaseURL,
		cfg.WrapperDirs(),
		cfg.ParameterMap(),
		cfg.Generic.ProcessWrapper,
	)
	status := runstatus.New(env, queue, logging.Op())

	host, _ := os.Hostname()
	loop := &syncloop.Loop{
		Host:          host,
		RunnerVersion: Version,
		Queue:         queue,
		Status:        status,
		Log:           logging.Op(),
	}
	return queue, loop
}
