// Package tracker follows asynchronous controller work to a terminal state.
package tracker

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/classifier"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
	pkgotel "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/otel"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// Default poll schedule
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultTimeout      = 300 * time.Second
)

// Status endpoints for handles that carry no URL
const (
	ExecutionStatusPath = "/dna/intent/api/v1/dnacaap/management/execution-status/%s"
	TaskPath            = "/dna/intent/api/v1/task/%s"
)

// StatusPending is reported for polls that observed no terminal state
const StatusPending = "PENDING"

// Config is the poll schedule of one task
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

// DefaultConfig returns the default poll schedule
func DefaultConfig() Config {
	return Config{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Timeout:      DefaultTimeout,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// StatusGetter issues the status GETs. *dnac_client.Session implements it.
type StatusGetter interface {
	GetJSON(ctx context.Context, path string) (interface{}, error)
}

// Tracker polls execution and task handles. It blocks the caller and never
// starts background work.
type Tracker struct {
	getter  StatusGetter
	log     logger.Logger
	config  Config
	mapper  *descriptor.StatusMapper
	clock   clock.Clock
	metrics *metrics.Recorder
}

// Option configures a Tracker
type Option func(*Tracker)

// WithConfig sets the poll schedule
func WithConfig(cfg Config) Option {
	return func(t *Tracker) {
		t.config = cfg.withDefaults()
	}
}

// WithStatusMapper sets the version-specific status synonyms
func WithStatusMapper(m *descriptor.StatusMapper) Option {
	return func(t *Tracker) {
		if m != nil {
			t.mapper = m
		}
	}
}

// WithClock sets the clock used for sleeps and deadlines
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) {
		t.clock = clk
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(t *Tracker) {
		t.metrics = recorder
	}
}

// New creates a tracker over getter
func New(getter StatusGetter, log logger.Logger, opts ...Option) *Tracker {
	defaultMapper, _ := descriptor.NewStatusMapper(descriptor.VersionHint{}, nil)
	t := &Tracker{
		getter: getter,
		log:    log,
		config: DefaultConfig(),
		mapper: defaultMapper,
		clock:  clock.NewClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.NewTestLogger()
	}
	return t
}

// Result is the terminal observation of a handle
type Result struct {
	Handle *classifier.Handle
	// Status is the mapped terminal status, SUCCESS on return without error
	Status string
	// Payload is the last status body
	Payload interface{}
	Polls   int
	Elapsed time.Duration
}

// ResourceID returns the id of the resource the work created, when the
// status payload names one.
func (r *Result) ResourceID() string {
	m, ok := statusRecord(r.Payload).(map[string]interface{})
	if !ok {
		return ""
	}
	for _, key := range []string{"resourceId", "siteId", "id"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	// Task handles report the new id in progress or data
	for _, key := range []string{"data", "progress"} {
		if s, ok := m[key].(string); ok && isUUIDLike(s) {
			return s
		}
	}
	return ""
}

// observation is one parsed status poll
type observation struct {
	status  string
	message string
	code    string
}

// Wait polls h until it reaches SUCCESS or FAILURE, or the timeout elapses.
// On FAILURE it returns a controller_side error with the status payload; on
// timeout a timeout error. The remote work is never cancelled.
func (t *Tracker) Wait(ctx context.Context, h *classifier.Handle) (*Result, error) {
	if h == nil || h.ID() == "" {
		return nil, apperrors.NewTaskError(apperrors.KindInternal, "tracker called without an execution handle")
	}

	ctx = logger.WithExecutionID(ctx, h.ID())
	ctx, span := pkgotel.StartSpan(ctx, "tracker.wait",
		attribute.String("dnac.handle", h.String()))
	defer span.End()

	path := statusPath(h)
	start := t.clock.Now()
	deadline := start.Add(t.config.Timeout)
	schedule := dnac_client.NewBackOff(dnac_client.BackoffExponential, t.config.InitialDelay, t.config.MaxDelay, t.clock)
	result := &Result{Handle: h}

	t.log.Infof(ctx, "Waiting for %s (timeout %s)", h, t.config.Timeout)
	for {
		remaining := deadline.Sub(t.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := schedule.NextBackOff()
		if wait > remaining {
			wait = remaining
		}
		if err := t.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("stopped waiting for %s: %w", h, err)
		}

		body, obs, err := t.poll(ctx, h, path)
		result.Polls++
		result.Elapsed = t.clock.Since(start)
		if err != nil {
			return nil, err
		}
		result.Payload = body
		t.metrics.RecordPoll(obs.status)
		t.log.Debugf(ctx, "Poll %d of %s: %s", result.Polls, h, obs.status)

		switch obs.status {
		case descriptor.StatusSuccess:
			result.Status = obs.status
			t.log.Infof(ctx, "%s completed after %d polls (%.1fs)", h, result.Polls, result.Elapsed.Seconds())
			return result, nil
		case descriptor.StatusFailure:
			result.Status = obs.status
			message := obs.message
			if message == "" {
				message = fmt.Sprintf("%s failed", h)
			}
			t.log.Warnf(ctx, "%s failed: %s", h, message)
			return result, apperrors.NewControllerSideError(message, obs.code, body)
		}
	}

	elapsed := t.clock.Since(start)
	t.log.Warnf(ctx, "Gave up waiting for %s after %.1fs; the controller may still complete it", h, elapsed.Seconds())
	return nil, &apperrors.TaskError{
		Kind:    apperrors.KindTimeout,
		Message: fmt.Sprintf("%.1fs elapsed", elapsed.Seconds()),
		Payload: result.Payload,
	}
}

// poll issues one status GET and maps its body
func (t *Tracker) poll(ctx context.Context, h *classifier.Handle, path string) (interface{}, observation, error) {
	body, err := t.getter.GetJSON(ctx, path)
	if err != nil {
		// A status body with status "failed" arrives as an error from the client
		if apiErr, ok := apperrors.IsAPIError(err); ok && apiErr.IsControllerFailure() {
			message := apiErr.Message
			if message == "" {
				message = fmt.Sprintf("%s failed", h)
			}
			return nil, observation{}, apperrors.NewControllerSideError(message, apiErr.ErrorCode, apiErr.Payload)
		}
		return nil, observation{}, fmt.Errorf("failed to poll %s: %w", h, err)
	}
	if h.IsExecution() {
		return body, t.observeExecution(body), nil
	}
	return body, t.observeTask(body), nil
}

// observeExecution reads an execution-status body: status and bapiError
func (t *Tracker) observeExecution(body interface{}) observation {
	m, _ := statusRecord(body).(map[string]interface{})
	raw, _ := utils.ConvertToString(m["status"])
	obs := observation{status: t.mapper.Terminal(raw)}
	if obs.status == "" {
		obs.status = StatusPending
	}
	if obs.status == descriptor.StatusFailure {
		obs.message = classifier.Message(m)
		obs.code = classifier.ErrorCode(m)
	}
	return obs
}

// observeTask reads a task body: isError, failureReason, progress, endTime
func (t *Tracker) observeTask(body interface{}) observation {
	m, _ := statusRecord(body).(map[string]interface{})
	if isError, _ := utils.ConvertToBool(m["isError"]); isError {
		msg, _ := utils.ConvertToString(m["failureReason"])
		if msg == "" {
			msg, _ = utils.ConvertToString(m["progress"])
		}
		return observation{status: descriptor.StatusFailure, message: msg, code: classifier.ErrorCode(m)}
	}
	if !utils.IsEmpty(m["endTime"]) {
		return observation{status: descriptor.StatusSuccess}
	}
	if raw, _ := utils.ConvertToString(m["status"]); raw != "" {
		if mapped := t.mapper.Terminal(raw); mapped != "" {
			obs := observation{status: mapped}
			if mapped == descriptor.StatusFailure {
				obs.message = classifier.Message(m)
			}
			return obs
		}
	}
	return observation{status: StatusPending}
}

func (t *Tracker) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := t.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// statusPath returns the URL polled for h
func statusPath(h *classifier.Handle) string {
	if h.IsExecution() {
		if h.StatusURL != "" {
			return h.StatusURL
		}
		return fmt.Sprintf(ExecutionStatusPath, h.ExecutionID)
	}
	if h.TaskURL != "" {
		return h.TaskURL
	}
	return fmt.Sprintf(TaskPath, h.TaskID)
}

// statusRecord unwraps the "response" envelope of task bodies
func statusRecord(body interface{}) interface{} {
	if m, ok := body.(map[string]interface{}); ok {
		if inner, ok := m["response"].(map[string]interface{}); ok {
			return inner
		}
	}
	return body
}

func isUUIDLike(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
