package dnac_client

import (
	"context"
	"fmt"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/classifier"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

// Default paging parameter names
const (
	DefaultOffsetParam = "offset"
	DefaultLimitParam  = "limit"
)

// Pager walks a paged list operation lazily. Offsets are 1-based.
type Pager struct {
	session  *Session
	family   string
	function string
	params   map[string]interface{}

	pageSize    int
	offset      int
	offsetParam string
	limitParam  string
	done        bool
	pages       int
	err         error
}

// Paginate returns a pager over (family, function). pageSize is bounded by
// the operation's documented maximum; zero selects the maximum.
func (s *Session) Paginate(family, function string, params map[string]interface{}, pageSize int) *Pager {
	p := &Pager{
		session:     s,
		family:      family,
		function:    function,
		params:      params,
		offset:      1,
		offsetParam: DefaultOffsetParam,
		limitParam:  DefaultLimitParam,
	}

	max := s.maxPageSize
	_, op, err := s.catalog.Resolve(family, function)
	if err != nil {
		p.err = apperrors.WrapTaskError(apperrors.KindUnsupported, err, "%s", err.Error())
		p.done = true
		return p
	}
	if op.Paging != nil {
		if op.Paging.OffsetParam != "" {
			p.offsetParam = op.Paging.OffsetParam
		}
		if op.Paging.LimitParam != "" {
			p.limitParam = op.Paging.LimitParam
		}
		if op.Paging.MaxPageSize > 0 && op.Paging.MaxPageSize < max {
			max = op.Paging.MaxPageSize
		}
	}
	if pageSize <= 0 || pageSize > max {
		pageSize = max
	}
	p.pageSize = pageSize
	return p
}

// PageSize returns the effective page size
func (p *Pager) PageSize() int { return p.pageSize }

// Pages returns the number of pages fetched so far
func (p *Pager) Pages() int { return p.pages }

// Done reports whether the sequence is exhausted
func (p *Pager) Done() bool { return p.done }

// Next fetches the next page. It returns nil with no error once the
// sequence is exhausted: after a page shorter than the page size, or an
// empty one.
func (p *Pager) Next(ctx context.Context) ([]interface{}, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.done {
		return nil, nil
	}

	params := make(map[string]interface{}, len(p.params)+2)
	for k, v := range p.params {
		params[k] = v
	}
	params[p.offsetParam] = p.offset
	params[p.limitParam] = p.pageSize

	result, err := p.session.Exec(ctx, p.family, p.function, params, false)
	if err != nil {
		p.done = true
		p.err = err
		return nil, err
	}
	p.pages++

	items := classifier.Items(result.Data, result.Operation.ItemsPath())
	if len(items) < p.pageSize {
		p.done = true
	}
	p.offset += p.pageSize
	return items, nil
}

// All drains the pager. maxPages bounds the walk; zero means unbounded.
func (p *Pager) All(ctx context.Context, maxPages int) ([]interface{}, error) {
	var all []interface{}
	for !p.Done() {
		if maxPages > 0 && p.pages >= maxPages {
			return all, fmt.Errorf("%s: more than %d pages", p.function, maxPages)
		}
		items, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}
