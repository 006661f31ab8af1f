package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	Symbol string   `json:"symbol" validate:"required"`
	Window int      `json:"window" default:"20" validate:"gte=1,lte=500"`
	Points []string `json:"points" validate:"min=2"`
	TF     string   `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
}

func bind(t *testing.T, body string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateAppliesDefaults(t *testing.T) {
	req := &sampleRequest{}
	if errs := bind(t, `{"symbol":"AAPL","points":["a","b"]}`, req); errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if req.Window != 20 || req.TF != "1m" {
		t.Fatalf("defaults not applied: %+v", req)
	}
}

func TestReadAndValidateReportsJSONFieldNames(t *testing.T) {
	errs, ok := bind(t, `{"window":900,"points":["a"],"tf":"1h"}`, &sampleRequest{}).([]ValidationError)
	if !ok {
		t.Fatalf("expected []ValidationError")
	}
	got := map[string]ValidationError{}
	for _, e := range errs {
		got[e.Field] = e
	}
	if got["symbol"].Code != "ERR_REQUIRED" {
		t.Fatalf("expected symbol required, got %+v", errs)
	}
	if got["window"].Message != "window must be less than or equal to 500" {
		t.Fatalf("unexpected window message %q", got["window"].Message)
	}
	if got["points"].Message != "points must have at least 2 items" {
		t.Fatalf("unexpected points message %q", got["points"].Message)
	}
	if got["tf"].Message != "tf must be one of: 1s, 1m, 5m" {
		t.Fatalf("unexpected tf message %q", got["tf"].Message)
	}
}

func TestReadAndValidateBindError(t *testing.T) {
	errs, ok := bind(t, `{"symbol":`, &sampleRequest{}).([]ValidationError)
	if !ok || len(errs) != 1 || errs[0].Code != "ERR_BIND" {
		t.Fatalf("expected one bind error, got %v", errs)
	}
}

var errGone = errors.New("gone")

func TestClassify(t *testing.T) {
	rules := []ErrorRule{{Target: errGone, Build: NotFoundError}}

	if e := Classify(errors.Join(errors.New("ctx"), errGone), rules...); e.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", e.Status)
	}
	if e := Classify(TooManyRequestsError("slow down"), rules...); e.Status != http.StatusTooManyRequests {
		t.Fatalf("AppError should pass through, got %d", e.Status)
	}
	e := Classify(errors.New("db down"), rules...)
	if e.Status != http.StatusInternalServerError || e.Message != "internal error" {
		t.Fatalf("expected opaque 500, got %+v", e)
	}
	if !strings.Contains(e.Error(), "db down") {
		t.Fatalf("cause should be kept for logs")
	}
}
