// Package graphql executes the API's GraphQL operations. It implements
// a deliberately small execution engine: a registry of query and
// mutation resolvers, a parser for the supported query-language subset,
// and per-field rate-limit and auth checks applied at dispatch.
package graphql

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/auth"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
	"github.com/patientdesk/patientdesk/internal/platform/ratelimit"
)

// Request is an incoming GraphQL request body.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Response is the standard GraphQL response envelope.
type Response struct {
	Data   map[string]interface{} `json:"data,omitempty"`
	Errors []ResponseError        `json:"errors,omitempty"`
}

// ResponseError is one entry in the errors array.
type ResponseError struct {
	Message    string                 `json:"message"`
	Path       []string               `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Args gives resolvers typed access to a field's arguments. Numeric
// values arrive as float64 from both parsed literals and JSON
// variables.
type Args map[string]interface{}

// Int returns the named integer argument.
func (a Args) Int(name string) (int, bool) {
	switch v := a[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// String returns the named string argument.
func (a Args) String(name string) (string, bool) {
	s, ok := a[name].(string)
	return s, ok
}

// StringList returns the named list-of-strings argument.
func (a Args) StringList(name string) ([]string, bool) {
	raw, ok := a[name].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Object returns the named object-literal argument.
func (a Args) Object(name string) (map[string]interface{}, bool) {
	m, ok := a[name].(map[string]interface{})
	return m, ok
}

// ResolverFunc resolves one field. Map and []map results get field
// selection applied; scalar results pass through unchanged.
type ResolverFunc func(ctx context.Context, args Args) (interface{}, error)

// Operation is a registered query or mutation.
type Operation struct {
	Resolve ResolverFunc
	// RequireAuth gates the operation behind a valid bearer token.
	RequireAuth bool
	// Roles additionally requires the identity to hold one of these.
	Roles []string
}

// RequestMeta carries transport-level facts the engine needs for
// throttling and warning logs.
type RequestMeta struct {
	TrackingKey string
	UserAgent   string
}

type metaKey struct{}

// WithMeta binds request metadata into ctx for the engine.
func WithMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func metaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(metaKey{}).(RequestMeta)
	if m.TrackingKey == "" {
		m.TrackingKey = ratelimit.UnknownKey
	}
	return m
}

// Engine holds the operation registry and executes requests.
type Engine struct {
	queries   map[string]Operation
	mutations map[string]Operation
	limiter   *ratelimit.Limiter
	log       *logging.Logger
}

// NewEngine creates an empty engine. The limiter may be nil to disable
// throttling (tests).
func NewEngine(limiter *ratelimit.Limiter, log *logging.Logger) *Engine {
	return &Engine{
		queries:   make(map[string]Operation),
		mutations: make(map[string]Operation),
		limiter:   limiter,
		log:       log,
	}
}

// Query registers a query operation under name.
func (e *Engine) Query(name string, op Operation) {
	e.queries[name] = op
}

// Mutation registers a mutation operation under name.
func (e *Engine) Mutation(name string, op Operation) {
	e.mutations[name] = op
}

// Execute parses and runs a request. Errors never escape as Go errors;
// they are logged once and formatted into the errors array.
func (e *Engine) Execute(ctx context.Context, req Request) *Response {
	doc, err := parseDocument(req.Query, req.Variables)
	if err != nil {
		return &Response{Errors: []ResponseError{{
			Message:    err.Error(),
			Extensions: map[string]interface{}{"code": "GRAPHQL_PARSE_FAILED"},
		}}}
	}

	registry := e.queries
	if doc.Operation == "mutation" {
		registry = e.mutations
	}

	resp := &Response{Data: make(map[string]interface{}, len(doc.Fields))}
	for _, field := range doc.Fields {
		val, err := e.dispatch(ctx, registry, doc, field)
		if err != nil {
			ae := apperror.Classify(err)
			resp.Data[field.Name] = nil
			resp.Errors = append(resp.Errors, ResponseError{
				Message:    ae.Message,
				Path:       []string{field.Name},
				Extensions: errorExtensions(ae),
			})
			continue
		}
		resp.Data[field.Name] = applySelection(val, field.Selection)
	}
	return resp
}

func errorExtensions(ae *apperror.Error) map[string]interface{} {
	ext := map[string]interface{}{"code": string(ae.Kind)}
	if len(ae.Fields) > 0 {
		ext["fields"] = ae.Fields
	}
	return ext
}

// dispatch runs the rate-limit check, the auth guard, and the resolver
// for one top-level field, logging any failure exactly once.
func (e *Engine) dispatch(ctx context.Context, registry map[string]Operation, doc *document, field *fieldNode) (interface{}, error) {
	op, ok := registry[field.Name]
	if !ok {
		err := apperror.Validation(fmt.Sprintf("unknown %s field %q", doc.Operation, field.Name), nil)
		e.logError(ctx, doc, field, err)
		return nil, err
	}

	if err := e.throttle(ctx, doc, field); err != nil {
		e.logError(ctx, doc, field, err)
		return nil, err
	}

	if op.RequireAuth {
		var err error
		if len(op.Roles) > 0 {
			_, err = auth.RequireRoles(ctx, op.Roles...)
		} else {
			_, err = auth.Require(ctx)
		}
		if err != nil {
			e.logError(ctx, doc, field, err)
			return nil, err
		}
	}

	val, err := op.Resolve(ctx, Args(field.Args))
	if err != nil {
		e.logError(ctx, doc, field, err)
		return nil, err
	}
	return val, nil
}

func (e *Engine) throttle(ctx context.Context, doc *document, field *fieldNode) error {
	if e.limiter == nil {
		return nil
	}
	meta := metaFromContext(ctx)
	res := e.limiter.Allow(meta.TrackingKey)
	if res.OK {
		return nil
	}

	opName := doc.Name
	if opName == "" {
		opName = doc.Operation
	}
	e.log.Warn(ctx, "rate limit exceeded", map[string]interface{}{
		"trackingKey":   meta.TrackingKey,
		"userAgent":     meta.UserAgent,
		"operationName": opName,
		"fieldName":     field.Name,
		"window":        res.Window.Name,
	})
	return apperror.RateLimited("too many requests")
}

func (e *Engine) logError(ctx context.Context, doc *document, field *fieldNode, err error) {
	ae := apperror.Classify(err)
	fields := map[string]interface{}{
		"contextType": "graphql",
		"operation":   doc.Operation,
		"fieldName":   field.Name,
		"status":      ae.Status,
		"error":       err.Error(),
	}
	switch {
	case ae.Status >= http.StatusInternalServerError:
		if ae.Err != nil {
			fields["cause"] = ae.Err.Error()
		}
		e.log.Error(ctx, "unhandled exception", fields)
	case ae.Status >= http.StatusBadRequest:
		e.log.Warn(ctx, "client error", fields)
	default:
		e.log.Info(ctx, "exception handled", fields)
	}
}

// applySelection filters map and list-of-map results down to the
// requested fields, recursing into sub-selections. Anything else is
// returned unchanged.
func applySelection(val interface{}, selection []*fieldNode) interface{} {
	if len(selection) == 0 || val == nil {
		return val
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(selection))
		for _, f := range selection {
			if inner, ok := v[f.Name]; ok {
				out[f.Name] = applySelection(inner, f.Selection)
			}
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, applySelection(item, selection))
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, applySelection(item, selection))
		}
		return out
	default:
		return val
	}
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler serves the /graphql endpoint.
type Handler struct {
	engine     *Engine
	playground bool
}

// NewHandler creates the HTTP handler. When playground is true, GET
// /graphql serves an interactive query page.
func NewHandler(engine *Engine, playground bool) *Handler {
	return &Handler{engine: engine, playground: playground}
}

// RegisterRoutes mounts the endpoint on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/graphql", h.HandlePost)
	e.GET("/graphql", h.HandleGet)
}

// HandlePost executes a GraphQL request. The response is always 200
// with any failures in the errors array, per the GraphQL-over-HTTP
// convention.
func (h *Handler) HandlePost(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body", nil)
	}
	if req.Query == "" {
		return apperror.Validation("query is required", nil)
	}

	ctx := WithMeta(c.Request().Context(), RequestMeta{
		TrackingKey: ratelimit.TrackingKey(c.RealIP()),
		UserAgent:   c.Request().UserAgent(),
	})
	resp := h.engine.Execute(ctx, req)
	return c.JSON(http.StatusOK, resp)
}

// HandleGet serves the playground page when enabled, otherwise runs a
// query passed in the "query" parameter.
func (h *Handler) HandleGet(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		if h.playground {
			return c.HTML(http.StatusOK, playgroundHTML)
		}
		return apperror.Validation("query parameter is required", nil)
	}

	ctx := WithMeta(c.Request().Context(), RequestMeta{
		TrackingKey: ratelimit.TrackingKey(c.RealIP()),
		UserAgent:   c.Request().UserAgent(),
	})
	resp := h.engine.Execute(ctx, Request{Query: query})
	return c.JSON(http.StatusOK, resp)
}

const playgroundHTML = `<!DOCTYPE html>
<html>
<head><title>GraphQL Playground</title></head>
<body>
<h1>GraphQL</h1>
<p>POST queries to /graphql as {"query": "...", "variables": {...}}.</p>
<textarea id="q" rows="10" cols="80">{ patients { id firstName lastName email } }</textarea><br>
<button onclick="run()">Run</button>
<pre id="out"></pre>
<script>
async function run() {
  const res = await fetch('/graphql', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({query: document.getElementById('q').value})
  });
  document.getElementById('out').textContent = JSON.stringify(await res.json(), null, 2);
}
</script>
</body>
</html>`
