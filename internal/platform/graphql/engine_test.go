package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/auth"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
	"github.com/patientdesk/patientdesk/internal/platform/ratelimit"
)

func testEngine() *Engine {
	e := NewEngine(nil, logging.Nop())
	e.Query("hello", Operation{
		Resolve: func(ctx context.Context, args Args) (interface{}, error) {
			return "world", nil
		},
	})
	e.Query("patient", Operation{
		Resolve: func(ctx context.Context, args Args) (interface{}, error) {
			id, _ := args.Int("id")
			if id != 1 {
				return nil, apperror.NotFound("patient not found")
			}
			return map[string]interface{}{
				"id":        1,
				"firstName": "John",
				"lastName":  "Doe",
				"ssn":       "123456789",
			}, nil
		},
	})
	e.Query("secret", Operation{
		RequireAuth: true,
		Resolve: func(ctx context.Context, args Args) (interface{}, error) {
			return "classified", nil
		},
	})
	e.Query("adminOnly", Operation{
		RequireAuth: true,
		Roles:       []string{"admin"},
		Resolve: func(ctx context.Context, args Args) (interface{}, error) {
			return "admin data", nil
		},
	})
	e.Mutation("boom", Operation{
		Resolve: func(ctx context.Context, args Args) (interface{}, error) {
			return nil, errors.New("driver: connection reset")
		},
	})
	return e
}

func TestExecute_ScalarQuery(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{Query: `{ hello }`})
	if len(resp.Errors) != 0 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if resp.Data["hello"] != "world" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestExecute_FieldSelectionApplied(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{
		Query: `{ patient(id: 1) { id firstName } }`,
	})
	if len(resp.Errors) != 0 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	got := resp.Data["patient"].(map[string]interface{})
	if got["id"] != 1 || got["firstName"] != "John" {
		t.Errorf("data = %+v", got)
	}
	if _, ok := got["lastName"]; ok {
		t.Error("unselected field returned")
	}
	if _, ok := got["ssn"]; ok {
		t.Error("unselected sensitive field returned")
	}
}

func TestExecute_ParseFailure(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{Query: `{ nope`})
	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if resp.Errors[0].Extensions["code"] != "GRAPHQL_PARSE_FAILED" {
		t.Errorf("code = %v", resp.Errors[0].Extensions["code"])
	}
}

func TestExecute_UnknownField(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{Query: `{ missing }`})
	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if resp.Errors[0].Extensions["code"] != string(apperror.KindValidation) {
		t.Errorf("code = %v", resp.Errors[0].Extensions["code"])
	}
}

func TestExecute_ResolverErrorShaped(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{
		Query: `{ patient(id: 99) { id } }`,
	})
	if v, ok := resp.Data["patient"]; !ok || v != nil {
		t.Errorf("data entry should be explicit null, got %v (present=%v)", v, ok)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	e := resp.Errors[0]
	if e.Message != "patient not found" {
		t.Errorf("message = %q", e.Message)
	}
	if len(e.Path) != 1 || e.Path[0] != "patient" {
		t.Errorf("path = %v", e.Path)
	}
	if e.Extensions["code"] != string(apperror.KindNotFound) {
		t.Errorf("code = %v", e.Extensions["code"])
	}
}

func TestExecute_InternalErrorMessageHidden(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{
		Query: `mutation { boom }`,
	})
	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if strings.Contains(resp.Errors[0].Message, "connection reset") {
		t.Errorf("internal detail leaked: %q", resp.Errors[0].Message)
	}
	if resp.Errors[0].Extensions["code"] != string(apperror.KindInternal) {
		t.Errorf("code = %v", resp.Errors[0].Extensions["code"])
	}
}

func TestExecute_PartialFailure(t *testing.T) {
	resp := testEngine().Execute(context.Background(), Request{
		Query: `{ hello missing }`,
	})
	if resp.Data["hello"] != "world" {
		t.Error("healthy sibling field should still resolve")
	}
	if len(resp.Errors) != 1 {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestExecute_AuthGuard(t *testing.T) {
	eng := testEngine()

	resp := eng.Execute(context.Background(), Request{Query: `{ secret }`})
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != string(apperror.KindUnauthenticated) {
		t.Fatalf("anonymous access: %+v", resp.Errors)
	}

	ctx := auth.NewContext(context.Background(), &auth.Identity{Subject: "u1", Roles: []string{"user"}})
	resp = eng.Execute(ctx, Request{Query: `{ secret }`})
	if len(resp.Errors) != 0 {
		t.Fatalf("authenticated access: %+v", resp.Errors)
	}
	if resp.Data["secret"] != "classified" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestExecute_RoleGuard(t *testing.T) {
	eng := testEngine()

	userCtx := auth.NewContext(context.Background(), &auth.Identity{Subject: "u1", Roles: []string{"user"}})
	resp := eng.Execute(userCtx, Request{Query: `{ adminOnly }`})
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != string(apperror.KindUnauthorized) {
		t.Fatalf("user role: %+v", resp.Errors)
	}

	adminCtx := auth.NewContext(context.Background(), &auth.Identity{Subject: "u2", Roles: []string{"admin"}})
	resp = eng.Execute(adminCtx, Request{Query: `{ adminOnly }`})
	if len(resp.Errors) != 0 {
		t.Fatalf("admin role: %+v", resp.Errors)
	}
}

func TestExecute_Throttled(t *testing.T) {
	limiter := ratelimit.New([]ratelimit.Window{
		{Name: "short", Interval: time.Second, Limit: 2},
	})
	eng := NewEngine(limiter, logging.Nop())
	eng.Query("hello", Operation{
		Resolve: func(ctx context.Context, args Args) (interface{}, error) {
			return "world", nil
		},
	})

	ctx := WithMeta(context.Background(), RequestMeta{TrackingKey: "9.9.9.9"})
	for i := 0; i < 2; i++ {
		if resp := eng.Execute(ctx, Request{Query: `{ hello }`}); len(resp.Errors) != 0 {
			t.Fatalf("request %d throttled early: %+v", i+1, resp.Errors)
		}
	}

	resp := eng.Execute(ctx, Request{Query: `{ hello }`})
	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if resp.Errors[0].Extensions["code"] != string(apperror.KindRateLimited) {
		t.Errorf("code = %v", resp.Errors[0].Extensions["code"])
	}
}

func TestApplySelection_ListOfMaps(t *testing.T) {
	val := []map[string]interface{}{
		{"id": 1, "firstName": "John", "ssn": "123456789"},
		{"id": 2, "firstName": "Jane", "ssn": "987654321"},
	}
	sel := []*fieldNode{{Name: "id"}, {Name: "firstName"}}

	out := applySelection(val, sel).([]interface{})
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	first := out[0].(map[string]interface{})
	if first["id"] != 1 || first["firstName"] != "John" {
		t.Errorf("first = %+v", first)
	}
	if _, ok := first["ssn"]; ok {
		t.Error("unselected field survived")
	}
}

func TestHandlePost_AlwaysHTTP200(t *testing.T) {
	h := NewHandler(testEngine(), false)
	e := echo.New()

	body := `{"query": "{ missing }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandlePost(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(resp.Errors) != 1 {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestHandlePost_MissingQuery(t *testing.T) {
	h := NewHandler(testEngine(), false)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandlePost(c)
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestHandleGet_Playground(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := NewHandler(testEngine(), true).HandleGet(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "GraphQL") {
		t.Error("playground page not served")
	}

	// Disabled outside local env.
	req = httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err := NewHandler(testEngine(), false).HandleGet(c)
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("expected validation error with playground off, got %v", err)
	}
}

func TestHandleGet_QueryParam(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+
		"%7B%20hello%20%7D", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(testEngine(), false).HandleGet(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp.Data["hello"] != "world" {
		t.Errorf("data = %+v", resp.Data)
	}
}
