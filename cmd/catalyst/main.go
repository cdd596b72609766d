package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	pkgotel "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/otel"
)

// Build-time variables set via ldflags
var (
	version   = "0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// Command-line flags shared by all subcommands
var (
	logLevel  string
	logFormat string
)

const serviceName = "catalyst"

func main() {
	rootCmd := &cobra.Command{
		Use:   "catalyst",
		Short: "Catalyst Center automation - declarative tasks against a Catalyst Center controller",
		Long: `catalyst runs declarative tasks against a Cisco Catalyst Center controller.

A task names a resource (site, global_pool, discovery, tag, ...) and carries
its desired record. The resource is reconciled to the desired state, or read
back with the <resource>_info task. Every run prints one result envelope.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error). Env: LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (text, json). Env: LOG_FORMAT")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Catalyst Center automation\n")
			fmt.Fprintf(cmd.OutOrStdout(), "  Version:    %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Built:      %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLoggerConfig loads the logger defaults from the environment and
// applies flag overrides. Logs always go to stderr; stdout carries the
// envelope.
func buildLoggerConfig() logger.Config {
	cfg := logger.ConfigFromEnv()
	if logLevel != "" {
		cfg.Level = logLevel
	}
	if logFormat != "" {
		cfg.Format = logFormat
	}
	cfg.Output = "stderr"
	cfg.Component = serviceName
	cfg.Version = version
	return cfg
}

// initTracing installs the tracer provider and returns its shutdown
func initTracing(ctx context.Context, log logger.Logger) func() {
	tp, err := pkgotel.InitTracer(serviceName, version, pkgotel.GetTraceSampleRatio(ctx, log))
	if err != nil {
		log.Warnf(ctx, "Tracing disabled: %v", err)
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnf(ctx, "Failed to shut down tracer provider: %v", err)
		}
	}
}
