package dnac_client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	pkgotel "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/otel"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// DefaultIdempotencyCacheSize bounds the idempotency keys kept per session
const DefaultIdempotencyCacheSize = 128

// Credentials authenticate a session. A pre-obtained Token is used as is;
// otherwise Username and Password acquire one.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// SessionConfig configures a Session
type SessionConfig struct {
	Catalog     *descriptor.Catalog
	Credentials Credentials
	// Version is the controller version reported by the operator
	Version string
	// DryRun suppresses every state-changing call
	DryRun bool
	// MaxPageSize bounds page sizes; DefaultMaxPageSize when zero
	MaxPageSize          int
	IdempotencyCacheSize int
}

// Session is the live connection context of one task invocation. It is
// not safe for concurrent use and must not be shared between tasks.
type Session struct {
	client      Client
	log         logger.Logger
	catalog     *descriptor.Catalog
	version     *semver.Version
	dryRun      bool
	creds       Credentials
	token       string
	reauthed    bool
	maxPageSize int
	keys        *lru.Cache[string, string]
}

// NewSession creates a session over client
func NewSession(client Client, log logger.Logger, cfg SessionConfig) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if log == nil {
		log = logger.NewTestLogger()
	}

	s := &Session{
		client:      client,
		log:         log,
		catalog:     cfg.Catalog,
		dryRun:      cfg.DryRun,
		creds:       cfg.Credentials,
		token:       cfg.Credentials.Token,
		maxPageSize: cfg.MaxPageSize,
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = DefaultMaxPageSize
	}
	if cfg.Version != "" {
		v, err := descriptor.ParseControllerVersion(cfg.Version)
		if err != nil {
			return nil, err
		}
		s.version = v
	}

	size := cfg.IdempotencyCacheSize
	if size <= 0 {
		size = DefaultIdempotencyCacheSize
	}
	keys, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create idempotency cache: %w", err)
	}
	s.keys = keys
	return s, nil
}

// Version returns the controller version, or nil when unknown
func (s *Session) Version() *semver.Version { return s.version }

// DryRun reports whether state-changing calls are suppressed
func (s *Session) DryRun() bool { return s.dryRun }

// Catalog returns the descriptor catalog the session resolves calls with
func (s *Session) Catalog() *descriptor.Catalog { return s.catalog }

// Authenticate acquires a session token with the configured credentials
func (s *Session) Authenticate(ctx context.Context) error {
	if s.creds.Username == "" {
		return apperrors.NewTaskError(apperrors.KindValidation, "username and password are required to authenticate")
	}
	resp, err := s.client.Post(ctx, AuthPath, nil,
		WithBasicAuth(s.creds.Username, s.creds.Password),
		// Token issuance has no side effect worth protecting
		WithRetryable())
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	var body struct {
		Token string `json:"Token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Token == "" {
		return apperrors.NewTaskError(apperrors.KindHTTPClient, "authentication response carried no token")
	}
	s.token = body.Token
	s.log.Debug(ctx, "Acquired controller session token")
	return nil
}

// send issues req with the session token, authenticating first when needed
// and once more when the controller rejects the token.
func (s *Session) send(ctx context.Context, req *Request) (*Response, error) {
	if s.token == "" && s.creds.Username != "" {
		if s.dryRun {
			return nil, apperrors.NewTaskError(apperrors.KindValidation,
				"check mode requires a pre-obtained token: acquiring one with username and password issues a POST")
		}
		if err := s.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := s.client.Do(ctx, s.withToken(req))
	if apiErr, ok := apperrors.IsAPIError(err); ok && apiErr.IsUnauthorized() && s.creds.Username != "" && !s.reauthed && !s.dryRun {
		s.reauthed = true
		s.log.Info(ctx, "Session token rejected, re-authenticating")
		if authErr := s.Authenticate(ctx); authErr != nil {
			return nil, authErr
		}
		return s.client.Do(ctx, s.withToken(req))
	}
	return resp, err
}

func (s *Session) withToken(req *Request) *Request {
	out := *req
	out.Headers = make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		out.Headers[k] = v
	}
	if s.token != "" {
		out.Headers[AuthTokenHeader] = s.token
	}
	return &out
}

// GetJSON issues a GET on a controller path and decodes the body
func (s *Session) GetJSON(ctx context.Context, path string) (interface{}, error) {
	resp, err := s.send(ctx, &Request{Method: http.MethodGet, URL: path})
	if err != nil {
		return nil, err
	}
	data, err := resp.JSON()
	if err != nil {
		return nil, fmt.Errorf("GET %s returned invalid JSON: %w", path, err)
	}
	return data, nil
}

// Result is the outcome of Exec
type Result struct {
	Operation *descriptor.Resolved
	Method    string
	// Path is the bound URL path
	Path       string
	StatusCode int
	Data       interface{}
	Raw        []byte
	Attempts   int
	Duration   time.Duration
	// Synthetic is set when dry-run suppressed the call
	Synthetic bool
}

// CallOption configures one Exec call
type CallOption func(*callOptions)

type callOptions struct {
	payload    interface{}
	hasPayload bool
}

// WithPayload sends payload as the JSON body instead of the remaining params
func WithPayload(payload interface{}) CallOption {
	return func(o *callOptions) {
		o.payload = payload
		o.hasPayload = true
	}
}

// Exec resolves (family, function) through the catalog, binds path
// parameters and routes the remaining params to the query string (GET,
// DELETE) or a JSON body (POST, PUT). When modifies is set and the session
// is in dry-run, a synthetic result is returned and nothing is sent.
func (s *Session) Exec(ctx context.Context, family, function string, params map[string]interface{}, modifies bool, opts ...CallOption) (*Result, error) {
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}

	_, op, err := s.catalog.Resolve(family, function)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindUnsupported, err, "%s", err.Error())
	}
	resolved, err := op.Resolve(s.version)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot resolve %s: %v", function, err)
	}

	path, rest, err := bindPath(resolved, params)
	if err != nil {
		return nil, err
	}
	result := &Result{Operation: resolved, Method: resolved.Method, Path: path}

	if modifies && s.dryRun {
		s.log.Infof(ctx, "Check mode: not sending %s %s", resolved.Method, path)
		result.Synthetic = true
		result.Data = map[string]interface{}{"changed": true, "checkMode": true}
		return result, nil
	}

	ctx, span := pkgotel.StartSpan(ctx, "controller."+resolved.Function,
		attribute.String("dnac.family", family),
		attribute.String("dnac.function", resolved.Function),
		attribute.String("http.request.method", resolved.Method))
	defer span.End()

	req := &Request{Method: resolved.Method, URL: path}
	switch resolved.Method {
	case http.MethodGet, http.MethodDelete:
		req.Query = encodeQuery(resolved, rest)
	default:
		payload := interface{}(renameKeys(resolved, rest))
		if call.hasPayload {
			payload = call.payload
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot encode %s body: %v", resolved.Function, err)
		}
		req.Body = body
		if resolved.IdempotencyKey && resolved.Method == http.MethodPost {
			req.IdempotencyKey = s.idempotencyKey(req.Method, path, body)
		}
	}

	s.log.Debugf(ctx, "Calling %s.%s (%s %s)", family, resolved.Function, resolved.Method, path)
	resp, err := s.send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.MessageOf(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := resp.JSON()
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindHTTPServer, err, "%s %s returned invalid JSON", resolved.Method, path)
	}
	result.StatusCode = resp.StatusCode
	result.Data = data
	result.Raw = resp.Body
	result.Attempts = resp.Attempts
	result.Duration = resp.Duration
	return result, nil
}

// idempotencyKey returns the key for an identical request issued earlier
// in this session, or a new one.
func (s *Session) idempotencyKey(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(method + " " + path + "\n" + string(body)))
	fingerprint := hex.EncodeToString(sum[:])
	if key, ok := s.keys.Get(fingerprint); ok {
		return key
	}
	key := uuid.NewString()
	s.keys.Add(fingerprint, key)
	return key
}

// bindPath substitutes {placeholders} from params and returns the bound
// path with the remaining params.
func bindPath(op *descriptor.Resolved, params map[string]interface{}) (string, map[string]interface{}, error) {
	rest := make(map[string]interface{}, len(params))
	for k, v := range params {
		rest[k] = v
	}
	path := op.Path
	for _, name := range op.PathParams() {
		value, ok := rest[name]
		if !ok || utils.IsEmpty(value) {
			return "", nil, apperrors.NewTaskError(apperrors.KindValidation, "%s requires path parameter %s", op.Function, name)
		}
		s, err := utils.ConvertToString(value)
		if err != nil {
			return "", nil, apperrors.WrapTaskError(apperrors.KindValidation, err, "path parameter %s: %v", name, err)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(s))
		delete(rest, name)
	}
	return path, rest, nil
}

func renameKeys(op *descriptor.Resolved, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[op.WireKey(k)] = v
	}
	return out
}

func encodeQuery(op *descriptor.Resolved, params map[string]interface{}) url.Values {
	if len(params) == 0 {
		return nil
	}
	q := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		wire := op.WireKey(k)
		switch v := params[k].(type) {
		case nil:
		case []interface{}:
			for _, item := range v {
				q.Add(wire, queryString(item))
			}
		default:
			q.Set(wire, queryString(v))
		}
	}
	return q
}

func queryString(v interface{}) string {
	if s, err := utils.ConvertToString(v); err == nil {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
