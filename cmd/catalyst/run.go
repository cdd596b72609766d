package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/config_loader"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dispatcher"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/output"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/replay"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
)

// errTaskFailed makes the process exit non-zero after a failed envelope has
// been printed
var errTaskFailed = errors.New("task failed")

type runOptions struct {
	taskFile        string
	state           string
	check           bool
	diff            bool
	output          string
	metricsTextfile string
	catalogDir      string
	replayFile      string
	replayTrace     bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task against the controller",
		Long: `Run one task against the controller and print its result envelope.

The task file holds the desired record plus, optionally, connection and
runtime fields (dnac_host, state, check_mode, ...). Connection values are
resolved in this order: flags, DNAC_* environment variables, task file,
defaults.

Examples:
  # Create or update a site
  catalyst run site -f ./site.yaml

  # Preview the change without writing
  catalyst run global_pool -f ./pool.yaml --check --diff

  # Read sites back
  catalyst run site_info -f ./query.yaml -o json

  # Replay recorded controller responses instead of a live controller
  catalyst run tag -f ./tag.yaml --replay ./responses.yaml --replay-trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runTask(cmd, args[0], opts)
			if errors.Is(err, errTaskFailed) {
				os.Exit(1)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.taskFile, "file", "f", "", "Path to the task file in YAML or JSON; - reads stdin")
	flags.StringVar(&opts.state, "state", "", "Desired state, overriding the task file")
	flags.BoolVar(&opts.check, "check", false, "Check mode: compute the change without writing")
	flags.BoolVar(&opts.diff, "diff", false, "Include before and after snapshots in the envelope")
	flags.StringVarP(&opts.output, "output", "o", string(output.FormatText), "Output format: text, json or yaml")
	flags.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "Write run metrics to this file in the Prometheus text format")
	flags.StringVar(&opts.catalogDir, "catalog-dir", "", "Directory of descriptor files extending the builtin catalog")
	flags.StringVar(&opts.replayFile, "replay", "", "Serve controller responses from this fixture file")
	flags.BoolVar(&opts.replayTrace, "replay-trace", false, "Print the replayed controller calls to stderr")
	addConnectionFlags(flags)

	return cmd
}

// addConnectionFlags registers the connection overrides read by
// config_loader.LoadConnection
func addConnectionFlags(flags *pflag.FlagSet) {
	flags.String("host", "", "Controller host name or URL. Env: DNAC_HOST")
	flags.Int("port", config_loader.DefaultPort, "Controller HTTPS port. Env: DNAC_PORT")
	flags.String("username", "", "Controller user name. Env: DNAC_USERNAME")
	flags.String("password", "", "Controller password. Env: DNAC_PASSWORD")
	flags.String("token", "", "Pre-issued session token. Env: DNAC_TOKEN")
	flags.Bool("verify", true, "Verify the controller certificate. Env: DNAC_VERIFY")
	flags.String("ca-file", "", "CA bundle used to verify the controller. Env: DNAC_CA_FILE")
	flags.String("controller-version", config_loader.DefaultVersion, "Controller API version. Env: DNAC_VERSION")
	flags.Duration("timeout", config_loader.DefaultTimeout, "Per-request timeout. Env: DNAC_TIMEOUT")
	flags.Int("retry-attempts", config_loader.DefaultRetryAttempts, "Attempts per retryable request. Env: DNAC_RETRY_ATTEMPTS")
	flags.Duration("retry-initial-delay", config_loader.DefaultRetryInitialDelay, "First retry delay")
	flags.Duration("retry-max-delay", config_loader.DefaultRetryMaxDelay, "Longest retry delay")
	flags.Float64("rate-limit", 0, "Maximum requests per second; 0 disables. Env: DNAC_RATE_LIMIT")
}

func runTask(cmd *cobra.Command, task string, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format, err := output.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	writer := output.NewWriter(cmd.OutOrStdout(), format)

	log, err := logger.NewLogger(buildLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	shutdown := initTracing(ctx, log)
	defer shutdown()

	params := map[string]interface{}{}
	if opts.taskFile != "" {
		if params, err = config_loader.LoadTaskFile(opts.taskFile); err != nil {
			return writeFailure(writer, err)
		}
	}

	catalog, err := loadCatalog(opts.catalogDir)
	if err != nil {
		return writeFailure(writer, err)
	}

	recorder := metrics.NewRecorder(metrics.Config{Component: serviceName, Version: version, Commit: commit})
	builder := dispatcher.NewBuilder().
		WithCatalog(catalog).
		WithLogger(log).
		WithMetrics(recorder)

	var replayClient *replay.Client
	if opts.replayFile != "" {
		rf, err := replay.LoadResponses(opts.replayFile)
		if err != nil {
			return writeFailure(writer, err)
		}
		if replayClient, err = replay.NewClient(rf); err != nil {
			return writeFailure(writer, err)
		}
		builder = builder.WithClient(replayClient)
		// A replayed run needs no controller address or credentials
		conn, err := config_loader.LoadConnection(replayConnectionKeys(params), cmd.Flags())
		if err != nil {
			return writeFailure(writer, err)
		}
		builder = builder.WithConnection(conn)
	} else {
		conn, err := config_loader.LoadConnection(params, cmd.Flags())
		if err != nil {
			return writeFailure(writer, err)
		}
		builder = builder.WithConnection(conn)
	}

	d, err := builder.Build()
	if err != nil {
		return writeFailure(writer, err)
	}

	env := d.Run(ctx, dispatcher.Invocation{
		Task:      task,
		Params:    params,
		State:     opts.state,
		CheckMode: opts.check,
		Diff:      opts.diff,
	})

	if replayClient != nil && opts.replayTrace {
		trace := &replay.Trace{Task: task, Requests: replayClient.Snapshot(), Verbose: true}
		writeReplayTrace(cmd.ErrOrStderr(), trace, format)
	}
	if opts.metricsTextfile != "" {
		if err := recorder.WriteTextfile(opts.metricsTextfile); err != nil {
			log.Warnf(ctx, "%v", err)
		}
	}

	if err := writer.WriteEnvelope(env); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if env.Failed {
		return errTaskFailed
	}
	return nil
}

// replayConnectionKeys fills in a placeholder host and token so a task file
// without connection fields validates
func replayConnectionKeys(params map[string]interface{}) map[string]interface{} {
	keys := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		keys[k] = v
	}
	if !hasKey(keys, config_loader.FieldHost) {
		keys[config_loader.FieldHost] = replay.BaseURL
	}
	if !hasKey(keys, config_loader.FieldToken) && !hasKey(keys, config_loader.FieldUsername) {
		keys[config_loader.FieldToken] = "replay"
	}
	return keys
}

func hasKey(keys map[string]interface{}, field string) bool {
	if _, ok := keys[field]; ok {
		return true
	}
	_, ok := keys["dnac_"+field]
	return ok
}

func loadCatalog(dir string) (*descriptor.Catalog, error) {
	catalog, err := descriptor.Builtin()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		if err := catalog.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("failed to load catalog directory: %w", err)
		}
	}
	return catalog, nil
}

// writeFailure prints a failed envelope for an error raised before the task
// could run
func writeFailure(writer output.Writer, err error) error {
	if werr := writer.WriteEnvelope(dispatcher.Failed(err)); werr != nil {
		return fmt.Errorf("failed to write result: %w", werr)
	}
	return errTaskFailed
}

func writeReplayTrace(out io.Writer, trace *replay.Trace, format output.Format) {
	if format == output.FormatText {
		_, _ = io.WriteString(out, trace.FormatText())
		return
	}
	data, err := trace.FormatJSON()
	if err != nil {
		_, _ = fmt.Fprintf(out, "failed to format replay trace: %v\n", err)
		return
	}
	_, _ = out.Write(append(data, '\n'))
}
