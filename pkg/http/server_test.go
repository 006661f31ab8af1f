package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "TradeSync/pkg/logger"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok/:id", func(c echo.Context) error { return SuccessResponse(c, c.Param("id")) })
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundError("nothing here")) })
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(applogger.Nop(), []Handler{routes{}},
		WithRegistry(prometheus.NewRegistry()),
		WithAllowOrigins([]string{"https://app.example"}),
	)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServerRecoversPanics(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/ok/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("server should keep serving after a panic, got %d", rec.Code)
	}
}

func TestServerMetricsUseRouteTemplate(t *testing.T) {
	s := newTestServer(t)
	serve(s, httptest.NewRequest(http.MethodGet, "/ok/1", nil))
	serve(s, httptest.NewRequest(http.MethodGet, "/ok/2", nil))
	serve(s, httptest.NewRequest(http.MethodGet, "/missing", nil))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",route="/ok/:id",status="200"} 2`) {
		t.Fatalf("expected templated route counter, got:\n%s", body)
	}
	if !strings.Contains(body, `route="/missing",status="404"`) {
		t.Fatalf("expected 404 counter")
	}
	if strings.Contains(body, `route="/ok/1"`) {
		t.Fatalf("raw paths must not become labels")
	}
}

func TestServerCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/ok/1", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := serve(s, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "https://app.example" {
		t.Fatalf("expected allowed origin echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/ok/1", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = serve(s, req)
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Fatalf("foreign origin must not be allowed")
	}
}
