package http

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/searchktools/h1server/core/pools"
)

func newTestContext(t *testing.T, raw string) (*RequestContext, *bytes.Buffer) {
	t.Helper()
	req, err := readRequest(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}

	var out bytes.Buffer
	rw := NewResponseWriter(&out)
	rw.Reset(req, true)

	ctx := NewRequestContext(rw, pools.NewArena(nil), nil)
	ctx.Reset(req)
	return ctx, &out
}

// TestContextBasic tests request accessors
func TestContextBasic(t *testing.T) {
	ctx, _ := newTestContext(t, "GET /users/42?sort=asc&x=1 HTTP/1.1\r\nHost: a\r\nUser-Agent: TestAgent/1.0\r\n\r\n")

	if ctx.Method() != MethodGet {
		t.Errorf("Expected method GET, got %s", ctx.Method())
	}
	if ctx.Path() != "/users/42" {
		t.Errorf("Expected path /users/42, got %s", ctx.Path())
	}
	if ctx.Query("sort") != "asc" {
		t.Errorf("Expected sort=asc, got %s", ctx.Query("sort"))
	}
	if ctx.RawQuery() != "sort=asc&x=1" {
		t.Errorf("Unexpected raw query %q", ctx.RawQuery())
	}
	if ctx.Header("User-Agent") != "TestAgent/1.0" {
		t.Errorf("Expected user agent TestAgent/1.0, got %s", ctx.Header("User-Agent"))
	}
	if ctx.Version() != HTTP11 {
		t.Errorf("Expected HTTP/1.1, got %s", ctx.Version())
	}
}

// TestContextParams tests path parameters, including the overflow map
func TestContextParams(t *testing.T) {
	ctx, _ := newTestContext(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n")

	keys := []string{"a", "b", "c", "d", "e", "f"}
	for i, k := range keys {
		ctx.SetParam(k, strings.Repeat(k, i+1))
	}
	for i, k := range keys {
		if got := ctx.Param(k); got != strings.Repeat(k, i+1) {
			t.Errorf("Param(%s) = %q", k, got)
		}
	}

	ctx.SetParam("a", "override")
	if ctx.Param("a") != "override" {
		t.Errorf("Expected override, got %s", ctx.Param("a"))
	}
	if ctx.Param("notexist") != "" {
		t.Error("Expected empty string for non-existent param")
	}
}

// TestContextReset tests that state does not leak between requests
func TestContextReset(t *testing.T) {
	ctx, _ := newTestContext(t, "GET /first?q=1 HTTP/1.1\r\nHost: a\r\n\r\n")
	ctx.SetParam("id", "1")
	ctx.SetParam("k1", "")
	ctx.SetParam("k2", "")
	ctx.SetParam("k3", "")
	ctx.SetParam("k4", "overflow")
	ctx.SetSegments(nil)
	ctx.SetError(404, ErrMissingHost, MethodGet)
	_ = ctx.Query("q")

	next, err := readRequest("POST /second HTTP/1.1\r\nHost: a\r\nContent-Length: 2\r\n\r\nhi", DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	ctx.Reset(next)

	if ctx.Param("id") != "" || ctx.Param("k4") != "" {
		t.Error("Expected params to be cleared")
	}
	if ctx.Path() != "/second" {
		t.Errorf("Expected path /second, got %s", ctx.Path())
	}
	if ctx.Query("q") != "" {
		t.Error("Expected query cache to be cleared")
	}
	if ctx.StatusCode() != 0 || ctx.Err() != nil || ctx.Allow() != MethodNone {
		t.Error("Expected error state to be cleared")
	}
	if string(ctx.Body()) != "hi" {
		t.Errorf("Expected body hi, got %q", ctx.Body())
	}
}

// TestContextSegments tests narrowing the visible path
func TestContextSegments(t *testing.T) {
	ctx, _ := newTestContext(t, "GET /api/v1/users HTTP/1.1\r\nHost: a\r\n\r\n")

	ctx.SetSegments(ctx.Segments()[1:])
	if ctx.Path() != "/v1/users" {
		t.Errorf("Expected /v1/users, got %s", ctx.Path())
	}
	ctx.SetSegments(nil)
	if ctx.Path() != "/" {
		t.Errorf("Expected /, got %s", ctx.Path())
	}
}

// TestContextString tests a text response
func TestContextString(t *testing.T) {
	ctx, out := newTestContext(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n")

	if err := ctx.String(200, "Hello World"); err != nil {
		t.Fatal(err)
	}

	want := "HTTP/1.1 200 \r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: 11\r\n\r\nHello World"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

// TestContextJSON tests JSON responses and binding
func TestContextJSON(t *testing.T) {
	ctx, out := newTestContext(t, "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 16\r\n\r\n{\"name\":\"alice\"}")

	var in struct {
		Name string `json:"name"`
	}
	if err := ctx.Bind(&in); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if in.Name != "alice" {
		t.Errorf("Expected alice, got %s", in.Name)
	}

	if err := ctx.JSON(201, map[string]string{"status": "ok"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), `{"status":"ok"}`) {
		t.Errorf("Unexpected JSON response %q", out.String())
	}
	if !strings.Contains(out.String(), "Content-Type: application/json\r\n") {
		t.Errorf("Expected JSON content type in %q", out.String())
	}
}

// TestContextProto tests protobuf responses and binding
func TestContextProto(t *testing.T) {
	payload, err := proto.Marshal(wrapperspb.String("hello"))
	if err != nil {
		t.Fatal(err)
	}
	raw := "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + string(payload)
	ctx, out := newTestContext(t, raw)

	var in wrapperspb.StringValue
	if err := ctx.BindProto(&in); err != nil {
		t.Fatalf("BindProto: %v", err)
	}
	if in.GetValue() != "hello" {
		t.Errorf("Expected hello, got %s", in.GetValue())
	}

	if err := ctx.Proto(200, &in); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), string(payload)) {
		t.Error("Expected protobuf payload in response")
	}
}

// TestContextError tests the JSON error body
func TestContextError(t *testing.T) {
	ctx, out := newTestContext(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n")

	ctx.Error(404, "Not Found")
	if !strings.HasPrefix(out.String(), "HTTP/1.1 404 \r\n") {
		t.Errorf("Expected 404 status line, got %q", out.String())
	}
	if !strings.Contains(out.String(), `"message":"Not Found"`) {
		t.Errorf("Expected message in body, got %q", out.String())
	}
}

// TestContextNoContent tests a bodiless response
func TestContextNoContent(t *testing.T) {
	ctx, out := newTestContext(t, "DELETE /x HTTP/1.1\r\nHost: a\r\n\r\n")

	if err := ctx.NoContent(204); err != nil {
		t.Fatal(err)
	}
	if out.String() != "HTTP/1.1 204 \r\n\r\n" {
		t.Errorf("Unexpected response %q", out.String())
	}
	if !ctx.Response().Complete() {
		t.Error("Expected complete response")
	}
}
