// Command groupsync-node runs the node service: an in-memory store of group
// records reachable over HTTP. The coordinator drives one of these per host.
//
// Routes:
//
//	GET    /v1/group/{groupId}/   existence check, 200 or 404
//	HEAD   /v1/group/{groupId}/   existence check without a body
//	GET    /v1/group/             sorted list of stored group ids
//	POST   /v1/group/             create, 201 or 409
//	DELETE /v1/group/             delete, 200 or 404
//	GET    /health                liveness
//	GET    /info                  instance id, group count, stored bytes, start time
//	GET    /metrics               prometheus
//
// Configuration comes from flags, GROUPSYNC_NODE_* environment variables, or
// a --config file. A bare port may be given as the only argument:
//
//	groupsync-node 5001
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/logging"
	"github.com/dreamware/groupsync/internal/metrics"
	"github.com/dreamware/groupsync/internal/node"
)

const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "groupsync-node [port]",
	Short: "Serves one host's group records over HTTP",
	Args:  cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel, logger := logging.New()
		defer func() { _ = logger.Sync() }()

		if err := loadConfigFile(cfgFile); err != nil {
			logger.Error("failed to load config file", zap.String("path", cfgFile), zap.Error(err))
			return err
		}

		config := readConfig(logger, args)
		logging.SetLevel(logger, logLevel, config.logLevelStr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runNode(ctx, logger, config)
	},
}

var cfgFile string

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "specifies a config file to load")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("listen", "127.0.0.1:5000", "the address to serve on")
	rootCmd.Flags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("groupsync_node")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)
}

func loadConfigFile(path string) error {
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}

type config struct {
	logLevelStr string
	listen      string
}

func readConfig(logger *zap.Logger, args []string) *config {
	config := &config{
		logLevelStr: viper.GetString("log-level"),
		listen:      listenAddress(viper.GetString("listen"), args),
	}

	logger.Info("parsed node configuration",
		zap.String("logLevelStr", config.logLevelStr),
		zap.String("listen", config.listen),
	)

	return config
}

// listenAddress applies a positional port argument to the configured
// address, keeping its host part.
func listenAddress(listen string, args []string) string {
	if len(args) == 0 || args[0] == "" {
		return listen
	}
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, args[0])
}

// newHandler mounts the node routes next to /metrics.
func newHandler(n *node.Node, gatherer prometheus.Gatherer) http.Handler {
	router := n.Router()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

func runNode(ctx context.Context, logger *zap.Logger, config *config) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	n := node.New(node.Options{
		Logger:  logger,
		Metrics: metrics.NewNodeMetrics(registry),
	})

	lis, err := net.Listen("tcp", config.listen)
	if err != nil {
		logger.Error("failed to listen", zap.String("listen", config.listen), zap.Error(err))
		return err
	}

	return serve(ctx, logger, lis, newHandler(n, registry), n.InstanceID)
}

// serve runs srv on lis until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, logger *zap.Logger, lis net.Listener, handler http.Handler, instanceID string) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("node listening",
			zap.String("address", lis.Addr().String()),
			zap.String("instanceId", instanceID))
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("node server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("node shutdown error", zap.Error(err))
		return err
	}
	logger.Info("node stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
