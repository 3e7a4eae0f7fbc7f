// Command groupsync-coordinator creates and deletes groups across a fixed,
// ordered list of node hosts.
//
// Subcommands:
//
//	serve         run the coordinator HTTP API
//	create <id>   create a group on every host
//	delete <id>   delete a group from every host
//	demo <id>     create, then delete if the create succeeded
//
// Hosts and other settings come from flags, GROUPSYNC_* environment
// variables, or a --config file:
//
//	GROUPSYNC_HOSTS=127.0.0.1:5000,127.0.0.1:5001 groupsync-coordinator create team-a
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/coordinator"
	"github.com/dreamware/groupsync/internal/logging"
	"github.com/dreamware/groupsync/internal/metrics"
	"github.com/dreamware/groupsync/internal/nodeclient"
)

const shutdownTimeout = 5 * time.Second

var defaultHosts = []string{"127.0.0.1:5000", "127.0.0.1:5001", "127.0.0.1:5002"}

var rootCmd = &cobra.Command{
	Use:           "groupsync-coordinator",
	Short:         "Keeps group membership consistent across a fixed set of nodes",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfigFile(cfgFile)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator HTTP API",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel, logger := logging.New()
		defer func() { _ = logger.Sync() }()

		config := readConfig(logger)
		logging.SetLevel(logger, logLevel, config.logLevelStr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, logger, config)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <groupId>",
	Short: "Create a group on every host",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, func(ctx context.Context, coord *coordinator.Coordinator, out io.Writer) error {
			return report(ctx, coord, out, cluster.PhaseCreate, args[0])
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <groupId>",
	Short: "Delete a group from every host",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, func(ctx context.Context, coord *coordinator.Coordinator, out io.Writer) error {
			return report(ctx, coord, out, cluster.PhaseDelete, args[0])
		})
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo <groupId>",
	Short: "Create a group and then delete it again",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, func(ctx context.Context, coord *coordinator.Coordinator, out io.Writer) error {
			return runDemo(ctx, coord, out, args[0])
		})
	},
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "specifies a config file to load")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.StringSlice("hosts", defaultHosts, "ordered list of node hosts")
	configFlags.Bool("parallel", false, "contact all hosts of a pass concurrently")
	configFlags.Duration("request-timeout", nodeclient.DefaultTimeout, "timeout for a single node request")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	serveFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	serveFlags.String("listen", "127.0.0.1:8080", "the address to serve the coordinator API on")
	serveFlags.Duration("health-interval", 5*time.Second, "how often to probe host health")
	serveCmd.Flags().AddFlagSet(serveFlags)

	rootCmd.AddCommand(serveCmd, createCmd, deleteCmd, demoCmd)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("groupsync")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)
	_ = viper.BindPFlags(serveFlags)
}

func loadConfigFile(path string) error {
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}

type config struct {
	logLevelStr    string
	hosts          []string
	parallel       bool
	requestTimeout time.Duration
	listen         string
	healthInterval time.Duration
}

func readConfig(logger *zap.Logger) *config {
	config := &config{
		logLevelStr:    viper.GetString("log-level"),
		hosts:          splitHosts(viper.GetStringSlice("hosts")),
		parallel:       viper.GetBool("parallel"),
		requestTimeout: viper.GetDuration("request-timeout"),
		listen:         viper.GetString("listen"),
		healthInterval: viper.GetDuration("health-interval"),
	}

	logger.Info("parsed coordinator configuration",
		zap.String("logLevelStr", config.logLevelStr),
		zap.Strings("hosts", config.hosts),
		zap.Bool("parallel", config.parallel),
		zap.Duration("requestTimeout", config.requestTimeout),
		zap.String("listen", config.listen),
		zap.Duration("healthInterval", config.healthInterval),
	)

	return config
}

// splitHosts accepts hosts given as separate values or as one
// comma-separated value, as they arrive from the environment.
func splitHosts(values []string) []string {
	hosts := make([]string, 0, len(values))
	for _, v := range values {
		for _, host := range strings.Split(v, ",") {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}
	}
	return hosts
}

func newCoordinator(config *config, logger *zap.Logger, reg prometheus.Registerer, sink coordinator.DiagnosticSink) (*coordinator.Coordinator, error) {
	client := nodeclient.NewHTTPClient(nodeclient.Options{
		Timeout: config.requestTimeout,
		Logger:  logger,
	})

	var m *metrics.CoordinatorMetrics
	if reg != nil {
		m = metrics.NewCoordinatorMetrics(reg)
	}

	return coordinator.New(coordinator.Options{
		Hosts:       config.hosts,
		Client:      client,
		Logger:      logger,
		Diagnostics: sink,
		Metrics:     m,
		Parallel:    config.parallel,
	})
}

func runServe(ctx context.Context, logger *zap.Logger, config *config) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coord, err := newCoordinator(config, logger, registry, nil)
	if err != nil {
		logger.Error("invalid coordinator configuration", zap.Error(err))
		return err
	}

	monitor := coordinator.NewHostMonitor(coord.Hosts(), config.healthInterval, logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	lis, err := net.Listen("tcp", config.listen)
	if err != nil {
		logger.Error("failed to listen", zap.String("listen", config.listen), zap.Error(err))
		return err
	}

	srv := newServer(coord, monitor, registry, logger)
	return serve(ctx, logger, lis, srv.routes())
}

// serve runs handler on lis until ctx is done, then shuts down gracefully.
// Shutdown waits up to shutdownTimeout for in-flight requests, compensation
// included; a pass still running after that is cut off when the process exits.
func serve(ctx context.Context, logger *zap.Logger, lis net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", zap.String("address", lis.Addr().String()))
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("coordinator server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("coordinator shutdown error", zap.Error(err))
		return err
	}
	logger.Info("coordinator stopped")
	return nil
}

// runOneShot builds a coordinator for a single CLI command. Logs go to
// stderr so stdout carries only the pass results; diagnostics are also
// printed there in plain text for the operator.
func runOneShot(cmd *cobra.Command, fn func(ctx context.Context, coord *coordinator.Coordinator, out io.Writer) error) error {
	logLevel, logger := logging.NewWithWriter(cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	config := readConfig(logger)
	logging.SetLevel(logger, logLevel, config.logLevelStr)

	errOut := cmd.ErrOrStderr()
	sink := coordinator.MultiSink(
		coordinator.LogSink{Logger: logger},
		coordinator.DiagnosticFunc(func(d coordinator.Diagnostic) {
			fmt.Fprintln(errOut, d.Message())
		}),
	)

	coord, err := newCoordinator(config, logger, nil, sink)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, coord, cmd.OutOrStdout())
}

// runDemo creates groupID and deletes it again. The delete is skipped when
// the create did not converge.
func runDemo(ctx context.Context, coord *coordinator.Coordinator, out io.Writer, groupID string) error {
	if err := report(ctx, coord, out, cluster.PhaseCreate, groupID); err != nil {
		return err
	}
	return report(ctx, coord, out, cluster.PhaseDelete, groupID)
}

// report runs one pass, writes its result as a JSON line and returns the
// pass error.
func report(ctx context.Context, coord *coordinator.Coordinator, out io.Writer, phase cluster.Phase, groupID string) error {
	resp, err := runPass(ctx, coord, phase, groupID)
	if encErr := json.NewEncoder(out).Encode(resp); encErr != nil {
		return encErr
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
