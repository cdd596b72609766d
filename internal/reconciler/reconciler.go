// Package reconciler converges controller resources to their desired state:
// find the current record, diff it against the desired one and issue the
// minimum create, update or delete sequence, tracking asynchronous work to
// completion.
package reconciler

import (
	"context"
	"fmt"

	"code.cloudfoundry.org/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/classifier"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/diff"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/tracker"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/validator"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
	pkgotel "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/otel"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// DefaultMaxPages bounds paged lookups
const DefaultMaxPages = 100

// Result is the outcome of one reconcile or read
type Result struct {
	Changed bool
	Msg     string
	// Response is the observed record after the change, or the read payload
	Response interface{}
	Action   diff.ActionType
	Diff     *diff.Result
	// Before and After are masked snapshots of the resource
	Before map[string]interface{}
	After  map[string]interface{}
}

// Reconciler runs the reconcile loop over one session
type Reconciler struct {
	session       *dnac_client.Session
	log           logger.Logger
	trackerConfig tracker.Config
	clock         clock.Clock
	metrics       *metrics.Recorder
	maxPages      int
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithTrackerConfig sets the poll schedule for asynchronous operations
func WithTrackerConfig(cfg tracker.Config) Option {
	return func(r *Reconciler) {
		r.trackerConfig = cfg
	}
}

// WithClock sets the clock used by the tracker
func WithClock(clk clock.Clock) Option {
	return func(r *Reconciler) {
		r.clock = clk
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(r *Reconciler) {
		r.metrics = recorder
	}
}

// WithMaxPages bounds paged lookups
func WithMaxPages(n int) Option {
	return func(r *Reconciler) {
		r.maxPages = n
	}
}

// New creates a reconciler over session
func New(session *dnac_client.Session, log logger.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		session:       session,
		log:           log,
		trackerConfig: tracker.DefaultConfig(),
		clock:         clock.NewClock(),
		maxPages:      DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.NewTestLogger()
	}
	return r
}

// run carries the state of one reconcile
type run struct {
	*Reconciler
	d         *descriptor.Descriptor
	hooks     Hooks
	desired   map[string]interface{}
	name      string
	checkMode bool
	tracker   *tracker.Tracker
}

// observation is a found record in both shapes
type observation struct {
	raw       map[string]interface{}
	projected map[string]interface{}
}

// Reconcile converges the resource of task to its state. In check mode no
// state-changing call is issued; the result reports what would change.
func (r *Reconciler) Reconcile(ctx context.Context, task *validator.Task, checkMode bool) (*Result, error) {
	if task == nil || task.Descriptor == nil {
		return nil, apperrors.NewTaskError(apperrors.KindInternal, "reconcile called without a task")
	}
	d := task.Descriptor
	hooks := HooksFor(d)
	desired := hooks.Prepare(d, task.Args)

	mapper, err := descriptor.NewStatusMapper(d.VersionHint, r.session.Version())
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "invalid version hint for %s: %v", d.Name, err)
	}
	rn := &run{
		Reconciler: r,
		d:          d,
		hooks:      hooks,
		desired:    desired,
		name:       hooks.Name(d, desired),
		checkMode:  checkMode || r.session.DryRun(),
		tracker: tracker.New(r.session, r.log,
			tracker.WithConfig(r.trackerConfig),
			tracker.WithStatusMapper(mapper),
			tracker.WithClock(r.clock),
			tracker.WithMetrics(r.metrics)),
	}

	ctx = logger.WithResource(ctx, d.Family, d.Name)
	ctx = logger.WithResourceName(ctx, rn.name)
	ctx, span := pkgotel.StartSpan(ctx, "reconcile."+d.Name,
		attribute.String("dnac.resource", d.Name),
		attribute.String("dnac.state", task.State),
		attribute.Bool("dnac.check_mode", rn.checkMode))
	defer span.End()

	var result *Result
	switch task.Direction() {
	case descriptor.StatePresent:
		result, err = rn.present(ctx)
	case descriptor.StateAbsent:
		result, err = rn.absent(ctx)
	default:
		err = apperrors.NewTaskError(apperrors.KindUnsupported, "state %q cannot be reconciled", task.State)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.MessageOf(err))
		return result, err
	}
	span.SetAttributes(attribute.Bool("dnac.changed", result.Changed), attribute.String("dnac.action", string(result.Action)))
	return result, nil
}

// label is the "<Title> <name>" used in messages
func (rn *run) label() string {
	if rn.name == "" {
		return rn.d.Title()
	}
	return fmt.Sprintf("%s %s", rn.d.Title(), rn.name)
}

func (rn *run) present(ctx context.Context) (*Result, error) {
	found, err := rn.find(ctx)
	if err != nil {
		return nil, err
	}

	if found == nil {
		ctx = logger.WithAction(ctx, string(diff.ActionCreate))
		before, after, err := diff.Snapshots(rn.d, nil, rn.desired, false)
		if err != nil {
			return nil, err
		}
		result := &Result{Changed: true, Action: diff.ActionCreate, Before: before, After: after}
		if rn.checkMode {
			result.Msg = fmt.Sprintf("%s would be created", rn.label())
			result.Response = after
			return result, nil
		}
		created, err := rn.create(ctx)
		if err != nil {
			return nil, err
		}
		result.Msg = fmt.Sprintf("%s created", rn.label())
		result.Response = created
		return result, nil
	}

	res, err := diff.Compute(found.projected, rn.desired, rn.d)
	if err != nil {
		return nil, err
	}
	before, after, err := diff.Snapshots(rn.d, found.projected, rn.desired, false)
	if err != nil {
		return nil, err
	}
	result := &Result{Action: res.Action, Diff: res, Before: before, After: after, Response: found.raw}
	ctx = logger.WithAction(ctx, string(res.Action))
	if id := rn.observedID(found); id != "" {
		ctx = logger.WithResourceID(ctx, id)
	}

	switch res.Action {
	case diff.ActionNone:
		result.Msg = fmt.Sprintf("%s already up to date", rn.label())
		rn.log.Info(ctx, result.Msg)
		return result, nil

	case diff.ActionUpdate:
		result.Changed = true
		if rn.checkMode {
			result.Msg = fmt.Sprintf("%s would be updated: %s", rn.label(), res)
			return result, nil
		}
		updated, err := rn.update(ctx, found, res)
		if err != nil {
			return nil, err
		}
		result.Msg = fmt.Sprintf("%s updated", rn.label())
		result.Response = updated
		return result, nil

	case diff.ActionReplace:
		result.Changed = true
		if rn.checkMode {
			result.Msg = fmt.Sprintf("%s would be replaced: %s", rn.label(), res)
			return result, nil
		}
		rn.log.Warnf(ctx, "Replacing %s: immutable field(s) %v changed", rn.label(), res.Immutable)
		deleted, err := rn.delete(ctx, found)
		if err != nil {
			return nil, err
		}
		deleteMsg := rn.controllerMessage(deleted, fmt.Sprintf("%s deleted", rn.label()))
		created, err := rn.create(ctx)
		if err != nil {
			return nil, apperrors.NewPartialError(deleteMsg, err)
		}
		result.Msg = fmt.Sprintf("%s replaced", rn.label())
		result.Response = created
		return result, nil
	}
	return nil, apperrors.NewTaskError(apperrors.KindInternal, "unexpected action %s", res.Action)
}

func (rn *run) absent(ctx context.Context) (*Result, error) {
	found, err := rn.find(ctx)
	if err != nil {
		return nil, err
	}
	if found == nil {
		msg := fmt.Sprintf("%s Not Found", rn.label())
		rn.log.Info(ctx, msg)
		return &Result{Action: diff.ActionNone, Msg: msg}, nil
	}

	ctx = logger.WithAction(ctx, "DELETE")
	before, _, err := diff.Snapshots(rn.d, found.projected, nil, true)
	if err != nil {
		return nil, err
	}
	result := &Result{Changed: true, Action: diff.ActionNone, Before: before, Response: found.raw}
	if rn.checkMode {
		result.Msg = fmt.Sprintf("%s would be deleted", rn.label())
		return result, nil
	}
	if _, err := rn.delete(ctx, found); err != nil {
		return nil, err
	}
	result.Msg = fmt.Sprintf("%s deleted", rn.label())
	return result, nil
}

// create posts the desired record and returns the re-read record
func (rn *run) create(ctx context.Context) (interface{}, error) {
	op := rn.d.Operation(descriptor.OpPost)
	if op == nil {
		return nil, apperrors.NewTaskError(apperrors.KindUnsupported, "%s cannot be created", rn.d.Title())
	}
	body, err := diff.BuildCreate(rn.d, rn.desired)
	if err != nil {
		return nil, err
	}
	rn.log.Infof(ctx, "Creating %s", rn.label())
	res, err := rn.session.Exec(ctx, rn.d.Family, op.Function, nil, true, dnac_client.WithPayload(body))
	if err != nil {
		return nil, err
	}
	payload, err := rn.complete(ctx, descriptor.OpPost, res)
	if err != nil {
		return nil, err
	}
	return rn.reread(ctx, payload)
}

// update puts the converging body and returns the re-read record
func (rn *run) update(ctx context.Context, found *observation, res *diff.Result) (interface{}, error) {
	op := rn.d.Operation(descriptor.OpPut)
	if op == nil {
		return nil, apperrors.NewTaskError(apperrors.KindUnsupported, "%s cannot be updated", rn.d.Title())
	}
	body, err := diff.BuildUpdate(rn.d, found.projected, rn.desired, rn.observedID(found), res)
	if err != nil {
		return nil, err
	}
	params, err := rn.pathParams(op, found)
	if err != nil {
		return nil, err
	}
	rn.log.Infof(ctx, "Updating %s: %s", rn.label(), res)
	result, err := rn.session.Exec(ctx, rn.d.Family, op.Function, params, true, dnac_client.WithPayload(body))
	if err != nil {
		return nil, err
	}
	payload, err := rn.complete(ctx, descriptor.OpPut, result)
	if err != nil {
		return nil, err
	}
	return rn.reread(ctx, payload)
}

// delete removes the found record and returns the terminal delete payload
func (rn *run) delete(ctx context.Context, found *observation) (interface{}, error) {
	op := rn.d.Operation(descriptor.OpDelete)
	if op == nil {
		return nil, apperrors.NewTaskError(apperrors.KindUnsupported, "%s cannot be deleted", rn.d.Title())
	}
	params, err := rn.pathParams(op, found)
	if err != nil {
		return nil, err
	}
	rn.log.Infof(ctx, "Deleting %s", rn.label())
	res, err := rn.session.Exec(ctx, rn.d.Family, op.Function, params, true)
	if err != nil {
		return nil, err
	}
	return rn.complete(ctx, descriptor.OpDelete, res)
}

// controllerMessage returns the message a controller payload carries, or
// fallback
func (rn *run) controllerMessage(payload interface{}, fallback string) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return fallback
	}
	if msg := classifier.Message(m); msg != "" {
		return msg
	}
	levels := []map[string]interface{}{m}
	if inner, ok := m["response"].(map[string]interface{}); ok {
		levels = append(levels, inner)
	}
	for _, level := range levels {
		if progress, ok := level["progress"].(string); ok && progress != "" {
			return progress
		}
	}
	return fallback
}

// complete classifies a write response and waits for asynchronous work. It
// returns the terminal payload.
func (rn *run) complete(ctx context.Context, kind string, res *dnac_client.Result) (interface{}, error) {
	if res.Synthetic {
		return res.Data, nil
	}
	outcome := classifier.Classify(res.Data, kind)
	switch outcome.Status {
	case classifier.StatusFailed:
		return nil, outcome.Err(res.Data)
	case classifier.StatusPending:
		waited, err := rn.tracker.Wait(ctx, outcome.Handle)
		if err != nil {
			return nil, err
		}
		return waited.Payload, nil
	}
	return res.Data, nil
}

// reread returns the record after a write, or the write payload when the
// controller does not show it yet
func (rn *run) reread(ctx context.Context, payload interface{}) (interface{}, error) {
	found, err := rn.find(ctx)
	if err != nil {
		return nil, err
	}
	if found == nil {
		rn.log.Warnf(ctx, "%s not visible after the write completed", rn.label())
		return payload, nil
	}
	return found.raw, nil
}

// pathParams resolves the URL placeholders of op from the observed record,
// then the projected record, then the desired one
func (rn *run) pathParams(op *descriptor.Operation, found *observation) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	for _, name := range op.PathParams() {
		source := name
		if bound, ok := op.Bind[name]; ok && bound != "" {
			source = bound
		}
		var value interface{}
		for _, record := range []map[string]interface{}{found.raw, found.projected, rn.desired} {
			if v, ok := utils.GetNestedValue(record, source); ok && !utils.IsEmpty(v) {
				value = v
				break
			}
		}
		if value == nil {
			return nil, apperrors.NewTaskError(apperrors.KindInternal, "cannot resolve %s for %s %s", name, op.Function, rn.label())
		}
		params[name] = value
	}
	return params, nil
}

func (rn *run) observedID(found *observation) string {
	id, _ := utils.GetNestedString(found.raw, rn.d.Identity.IDPath())
	return id
}

// find returns the single observed record matching the desired identity, or
// nil when none exists. Records sharing the name but not the full identity
// are skipped; more than one full match is ambiguous.
func (rn *run) find(ctx context.Context) (*observation, error) {
	op := rn.d.Operation(descriptor.OpGet)
	if op == nil {
		return nil, apperrors.NewTaskError(apperrors.KindUnsupported, "%s cannot be read", rn.d.Title())
	}
	params := rn.hooks.LookupParams(rn.d, rn.desired)

	items, err := listRecords(ctx, rn.Reconciler, rn.d, op, params, 0)
	if err != nil {
		if apiErr, ok := apperrors.IsAPIError(err); ok && apiErr.IsNotFound() {
			rn.log.Debugf(ctx, "Lookup of %s returned 404", rn.label())
			return nil, nil
		}
		return nil, err
	}

	var matches []*observation
	skipped := 0
	for _, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		projected := rn.hooks.Project(rn.d, raw)
		if !rn.hooks.Candidate(rn.d, rn.desired, projected, raw) {
			continue
		}
		if !rn.hooks.Matches(rn.d, rn.desired, projected, raw) {
			skipped++
			continue
		}
		matches = append(matches, &observation{raw: raw, projected: projected})
	}
	if skipped > 0 {
		rn.log.Debugf(ctx, "Skipped %d record(s) named like %s with a different identity", skipped, rn.label())
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}
	return nil, apperrors.NewTaskError(apperrors.KindAmbiguous, "%d records match %s", len(matches), rn.label())
}

// listRecords reads every record of a get operation, walking pages when the
// operation is paged
func listRecords(ctx context.Context, r *Reconciler, d *descriptor.Descriptor, op *descriptor.Operation, params map[string]interface{}, pageSize int) ([]interface{}, error) {
	if op.Paging != nil {
		return r.session.Paginate(d.Family, op.Function, params, pageSize).All(ctx, r.maxPages)
	}
	res, err := r.session.Exec(ctx, d.Family, op.Function, params, false)
	if err != nil {
		return nil, err
	}
	if outcome := classifier.Classify(res.Data, descriptor.OpGet); outcome.Status == classifier.StatusFailed {
		return nil, outcome.Err(res.Data)
	}
	return classifier.Items(res.Data, res.Operation.ItemsPath()), nil
}
