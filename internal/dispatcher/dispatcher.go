// Package dispatcher is the entry point of a task invocation: it resolves the
// task's descriptor, validates the input, opens a controller session, runs
// the read path or the reconciler and renders the uniform result envelope.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/config_loader"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/reconciler"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/tracker"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/validator"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
	pkgotel "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/otel"
)

// NewDispatcher creates a new Dispatcher with the given configuration
func NewDispatcher(config *Config) (*Dispatcher, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}
	return &Dispatcher{config: config, log: config.Logger}, nil
}

func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is required")
	}
	if config.Catalog == nil {
		return fmt.Errorf("field Catalog is required")
	}
	if config.Logger == nil {
		return fmt.Errorf("field Logger is required")
	}
	if config.Client == nil && config.Connection == nil {
		return fmt.Errorf("field Connection is required when no Client is set")
	}
	return nil
}

// Run executes one task invocation and returns its envelope. Every failure
// is reported in the envelope; Run itself never fails.
func (d *Dispatcher) Run(ctx context.Context, inv Invocation) *Envelope {
	ctx = logger.WithExecutionID(ctx, uuid.NewString())
	ctx, span := d.startTracedExecution(ctx, inv.Task)
	defer span.End()

	env, kind := d.run(ctx, inv)
	if env.Failed {
		span.SetStatus(codes.Error, env.Msg)
		errCtx := logger.WithLogField(ctx, "failure_kind", string(kind))
		d.log.Errorf(errCtx, "Task %s failed: %s", inv.Task, env.Msg)
	} else {
		d.log.Infof(ctx, "Task %s finished: changed=%t msg=%q", inv.Task, env.Changed, env.Msg)
	}
	span.SetAttributes(attribute.Bool("dnac.changed", env.Changed), attribute.Bool("dnac.failed", env.Failed))
	d.config.Metrics.RecordOutcome(inv.Task, string(kind), env.Changed)
	return env
}

func (d *Dispatcher) run(ctx context.Context, inv Invocation) (*Envelope, apperrors.FailureKind) {
	desc, mode, err := d.config.Catalog.Lookup(inv.Task)
	if err != nil {
		return failure(apperrors.WrapTaskError(apperrors.KindUnsupported, err, "%s", err.Error()))
	}

	_, ambient := validator.SplitAmbient(inv.Params)
	runtime, err := config_loader.ParseRuntime(ambient)
	if err != nil {
		return failure(apperrors.WrapTaskError(apperrors.KindValidation, err, "%s", err.Error()))
	}
	state := runtime.State
	if inv.State != "" {
		state = inv.State
	}
	checkMode := inv.CheckMode || runtime.CheckMode
	wantDiff := inv.Diff || runtime.Diff
	if mode == descriptor.ModeReconcile && state == descriptor.StateQuery {
		mode = descriptor.ModeRead
	}
	ctx = logger.WithTask(ctx, inv.Task, state, checkMode)

	// Validation runs to completion before any controller call
	task, err := validator.ValidateTask(desc, mode, state, inv.Params)
	if err != nil {
		return failure(err)
	}

	session, err := d.newSession(ctx, checkMode)
	if err != nil {
		return failure(err)
	}
	rec := reconciler.New(session, d.log,
		reconciler.WithTrackerConfig(trackerConfig(runtime)),
		reconciler.WithClock(d.config.Clock),
		reconciler.WithMetrics(d.config.Metrics))

	var result *reconciler.Result
	if task.Mode == descriptor.ModeRead {
		result, err = rec.Read(ctx, task)
	} else {
		result, err = rec.Reconcile(ctx, task, checkMode)
	}
	if err != nil {
		return failure(err)
	}

	env := &Envelope{Changed: result.Changed, Msg: result.Msg, Response: result.Response}
	if wantDiff && task.Mode == descriptor.ModeReconcile {
		env.Diff = &Diff{Before: result.Before, After: result.After}
	}
	return env, apperrors.KindOKIdempotent
}

func (d *Dispatcher) newSession(ctx context.Context, dryRun bool) (*dnac_client.Session, error) {
	client := d.config.Client
	cfg := dnac_client.SessionConfig{Catalog: d.config.Catalog, DryRun: dryRun}
	if conn := d.config.Connection; conn != nil {
		cfg.Credentials = dnac_client.Credentials{Username: conn.Username, Password: conn.Password, Token: conn.Token}
		cfg.Version = conn.Version
		if client == nil {
			built, err := NewClient(conn, d.log, d.config)
			if err != nil {
				return nil, err
			}
			client = built
		}
	}
	session, err := dnac_client.NewSession(client, d.log, cfg)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindValidation, err, "invalid connection: %v", err)
	}
	d.log.Debugf(ctx, "Session opened on %s (dry_run=%t)", client.BaseURL(), dryRun)
	return session, nil
}

// NewClient builds the controller client for a connection
func NewClient(conn *config_loader.ConnectionConfig, log logger.Logger, config *Config) (dnac_client.Client, error) {
	tlsConfig, err := dnac_client.NewTLSConfig(conn.Verify, conn.CAFile)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindValidation, err, "%s", err.Error())
	}
	opts := []dnac_client.ClientOption{
		dnac_client.WithBaseURL(conn.BaseURL()),
		dnac_client.WithTimeout(conn.Timeout),
		dnac_client.WithRetryAttempts(conn.RetryAttempts),
		dnac_client.WithRetryDelays(conn.RetryInitialDelay, conn.RetryMaxDelay),
		dnac_client.WithTLSConfig(tlsConfig),
	}
	if conn.IdempotencyHeader != "" {
		opts = append(opts, dnac_client.WithIdempotencyHeader(conn.IdempotencyHeader))
	}
	if conn.RateLimit > 0 {
		opts = append(opts, dnac_client.WithRateLimit(conn.RateLimit, 1))
	}
	if config != nil {
		if config.Clock != nil {
			opts = append(opts, dnac_client.WithClock(config.Clock))
		}
		opts = append(opts, dnac_client.WithMetrics(config.Metrics))
	}
	client, err := dnac_client.NewClient(log, opts...)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindValidation, err, "%s", err.Error())
	}
	return client, nil
}

func trackerConfig(runtime *config_loader.RuntimeOptions) tracker.Config {
	cfg := tracker.DefaultConfig()
	if runtime.PollInitialDelay > 0 {
		cfg.InitialDelay = runtime.PollInitialDelay
	}
	if runtime.PollMaxDelay > 0 {
		cfg.MaxDelay = runtime.PollMaxDelay
	}
	if runtime.PollTimeout > 0 {
		cfg.Timeout = runtime.PollTimeout
	}
	return cfg
}

// failure renders err as a failed envelope. Controller-side and partial
// failures carry the last controller payload.
func failure(err error) (*Envelope, apperrors.FailureKind) {
	kind := apperrors.KindOf(err)
	msg := apperrors.MessageOf(err)
	var verrs *apperrors.ValidationErrors
	if errors.As(err, &verrs) {
		msg = verrs.Summary()
	}
	env := &Envelope{
		Failed: true,
		Msg:    msg,
		Failure: &Failure{
			Kind:           kind,
			Message:        msg,
			ControllerCode: apperrors.ControllerCodeOf(err),
		},
	}
	if kind == apperrors.KindControllerSide || kind == apperrors.KindPartial {
		if te, ok := apperrors.AsTaskError(err); ok && te.Payload != nil {
			env.Response = te.Payload
		} else if apiErr, ok := apperrors.IsAPIError(err); ok && apiErr.Payload != nil {
			env.Response = apiErr.Payload
		}
	}
	return env, kind
}

// Failed renders an error raised outside Run (config loading, task file
// parsing) as a failed envelope
func Failed(err error) *Envelope {
	env, _ := failure(err)
	return env
}

// startTracedExecution creates an OTel span and adds trace context to logs.
// Caller must call span.End() when done.
func (d *Dispatcher) startTracedExecution(ctx context.Context, task string) (context.Context, trace.Span) {
	return pkgotel.StartSpan(ctx, "Run", attribute.String("dnac.task", task))
}

// DispatcherBuilder provides a fluent interface for building a Dispatcher
type DispatcherBuilder struct {
	config *Config
}

// NewBuilder creates a new DispatcherBuilder
func NewBuilder() *DispatcherBuilder {
	return &DispatcherBuilder{config: &Config{}}
}

// WithCatalog sets the descriptor catalog
func (b *DispatcherBuilder) WithCatalog(catalog *descriptor.Catalog) *DispatcherBuilder {
	b.config.Catalog = catalog
	return b
}

// WithConnection sets the controller connection
func (b *DispatcherBuilder) WithConnection(conn *config_loader.ConnectionConfig) *DispatcherBuilder {
	b.config.Connection = conn
	return b
}

// WithClient sets a prebuilt controller client
func (b *DispatcherBuilder) WithClient(client dnac_client.Client) *DispatcherBuilder {
	b.config.Client = client
	return b
}

// WithLogger sets the logger
func (b *DispatcherBuilder) WithLogger(log logger.Logger) *DispatcherBuilder {
	b.config.Logger = log
	return b
}

// WithMetrics sets the metrics recorder
func (b *DispatcherBuilder) WithMetrics(recorder *metrics.Recorder) *DispatcherBuilder {
	b.config.Metrics = recorder
	return b
}

// WithClock sets the clock
func (b *DispatcherBuilder) WithClock(clk clock.Clock) *DispatcherBuilder {
	b.config.Clock = clk
	return b
}

// Build creates the Dispatcher
func (b *DispatcherBuilder) Build() (*Dispatcher, error) {
	return NewDispatcher(b.config)
}
