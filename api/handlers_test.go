package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"droidagent/adb"
	"droidagent/config"
	"droidagent/models"
	"droidagent/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.InitDatabaseAt(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adbClient := adb.NewClient("adb")
	dm := service.NewDeviceManager(adbClient)
	store := service.NewStepStore(db)
	sm := service.NewSessionManager(adbClient, dm, store, nil)

	router := gin.New()
	SetupRoutes(router, dm, sm, store, NewHub())
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeResponse(t, w); !resp.Success {
		t.Errorf("health should report success, got %+v", resp)
	}
}

func TestGetDevicesEmpty(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/api/devices", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeResponse(t, w); !resp.Success {
		t.Errorf("device list should report success, got %+v", resp)
	}
}

func TestGetSessionDefaultsToStopped(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/api/devices/device_x/session", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Success bool                 `json:"success"`
		Data    models.SessionStatus `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode session status: %v", err)
	}
	if resp.Data.State != "STOPPED" {
		t.Errorf("expected STOPPED for unknown device, got %s", resp.Data.State)
	}
}

func TestStepWithoutSessionIs404(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodPost, "/api/devices/device_x/step",
		`{"text": "do(tap, element=[100, 200])"}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeResponse(t, w); resp.Success {
		t.Error("missing session must not report success")
	}
}

func TestStepRejectsBadJSON(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodPost, "/api/devices/device_x/step", `{"text": `)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestConfirmWithoutSessionIs404(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodPost, "/api/devices/device_x/confirm",
		`{"id": "abc", "approve": true}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelWithoutSessionIs404(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodPost, "/api/devices/device_x/cancel", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTouchWithoutSessionIs404(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodPost, "/api/devices/device_x/touch",
		`{"phase": "down", "x": 10, "y": 10}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestScreenshotUnknownDeviceIs404(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/api/devices/device_x/screenshot?source=stream", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStepsHistoryEmpty(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/api/devices/device_x/steps", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeResponse(t, w); !resp.Success {
		t.Errorf("empty history should report success, got %+v", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(t, router, http.MethodOptions, "/api/devices", "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", origin)
	}
}
