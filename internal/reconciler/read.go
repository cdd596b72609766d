package reconciler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/classifier"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/validator"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	pkgotel "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/otel"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// Read runs the get operation of task with its arguments as filters. Paged
// operations are walked to the end unless the caller passes an explicit
// offset, in which case exactly that page is returned.
func (r *Reconciler) Read(ctx context.Context, task *validator.Task) (*Result, error) {
	if task == nil || task.Descriptor == nil {
		return nil, apperrors.NewTaskError(apperrors.KindInternal, "read called without a task")
	}
	d := task.Descriptor
	op := d.Operation(descriptor.OpGet)
	if op == nil {
		return nil, apperrors.NewTaskError(apperrors.KindUnsupported, "%s does not support reads", d.Title())
	}

	ctx = logger.WithResource(ctx, d.Family, d.Name)
	ctx, span := pkgotel.StartSpan(ctx, "read."+d.Name, attribute.String("dnac.resource", d.Name))
	defer span.End()

	params := utils.MustDeepCopyMap(task.Args)
	if params == nil {
		params = map[string]interface{}{}
	}

	if op.Paging != nil && !explicitPage(op, params) {
		items, err := r.session.Paginate(d.Family, op.Function, params, 0).All(ctx, r.maxPages)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []interface{}{}
		}
		r.log.Infof(ctx, "Read %d %s record(s)", len(items), d.Title())
		return &Result{
			Msg:      fmt.Sprintf("%d %s record(s) found", len(items), d.Title()),
			Response: items,
		}, nil
	}

	res, err := r.session.Exec(ctx, d.Family, op.Function, params, false)
	if err != nil {
		return nil, err
	}
	if outcome := classifier.Classify(res.Data, descriptor.OpGet); outcome.Status == classifier.StatusFailed {
		return nil, outcome.Err(res.Data)
	}
	response := responseAt(res)
	count := len(classifier.Items(res.Data, res.Operation.ItemsPath()))
	r.log.Infof(ctx, "Read %d %s record(s)", count, d.Title())
	return &Result{
		Msg:      fmt.Sprintf("%d %s record(s) found", count, d.Title()),
		Response: response,
	}, nil
}

// explicitPage reports whether the caller chose the page themselves
func explicitPage(op *descriptor.Operation, params map[string]interface{}) bool {
	offset := dnac_client.DefaultOffsetParam
	if op.Paging.OffsetParam != "" {
		offset = op.Paging.OffsetParam
	}
	_, ok := params[offset]
	return ok
}

// responseAt returns the payload under the operation's item path
func responseAt(res *dnac_client.Result) interface{} {
	path := res.Operation.ItemsPath()
	if path == "." {
		return res.Data
	}
	m, ok := res.Data.(map[string]interface{})
	if !ok {
		return res.Data
	}
	if v, ok := utils.GetNestedValue(m, path); ok {
		return v
	}
	return res.Data
}
