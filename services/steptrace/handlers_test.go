// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package steptrace

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.RequestsPerSecond = 0
	cfg.Execution.AcquireTimeoutMS = 0
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := NewService(cfg, nil)
	return svc, NewRouter(NewHandlers(svc, nil), RouterOptions{ServeMetrics: true})
}

func post(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func codeBody(t *testing.T, code string) string {
	t.Helper()
	b, err := json.Marshal(CodeRequest{Code: code})
	require.NoError(t, err)
	return string(b)
}

func TestHandleExecute_Success(t *testing.T) {
	_, r := newTestRouter(t, testConfig())

	rec := post(t, r, "/v1/steptrace/execute", codeBody(t, "x = 1\ny = x + 2\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var got struct {
		Success bool `json:"success"`
		Steps   []struct {
			Event   string         `json:"event"`
			Line    int            `json:"lineno"`
			Code    *string        `json:"code"`
			After   map[string]any `json:"after"`
			Formula *struct {
				Expr  string  `json:"expr"`
				Latex *string `json:"latex"`
			} `json:"formula"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Success)
	require.Len(t, got.Steps, 4)

	line2 := got.Steps[2]
	assert.Equal(t, "line", line2.Event)
	assert.Equal(t, 2, line2.Line)
	assert.Equal(t, "y = x + 2", *line2.Code)
	assert.Equal(t, map[string]any{"x": float64(1), "y": float64(3)}, line2.After)
	require.NotNil(t, line2.Formula)
	assert.Equal(t, "x + 2", line2.Formula.Expr)
}

func TestHandleExecute_ScriptFailureIs200(t *testing.T) {
	_, r := newTestRouter(t, testConfig())

	rec := post(t, r, "/v1/steptrace/execute", codeBody(t, "a = 1 / 0\n"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, false, got["success"])
	assert.Contains(t, got["error"], "division by zero")
	assert.Contains(t, got["traceback"], "Traceback")
	assert.NotContains(t, got, "steps")
}

func TestHandleExecute_Rejections(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.MaxSourceBytes = 64
	_, r := newTestRouter(t, cfg)

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"empty code", `{"code":""}`, http.StatusBadRequest, `{"success":false,"error":"No code provided"}`},
		{"missing code", `{}`, http.StatusBadRequest, `{"success":false,"error":"No code provided"}`},
		{"malformed", `{"code":`, http.StatusBadRequest, ""},
		{"too large", codeBody(t, strings.Repeat("x", 65)), http.StatusRequestEntityTooLarge, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, r, "/v1/steptrace/execute", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleExecute_Busy(t *testing.T) {
	svc, r := newTestRouter(t, testConfig())
	require.True(t, svc.sem.TryAcquire(1))
	defer svc.sem.Release(1)

	rec := post(t, r, "/v1/steptrace/execute", codeBody(t, "x = 1\n"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), codeBusy)
}

func TestHandleExecute_BusyWaitsForSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.AcquireTimeoutMS = 2000
	svc, r := newTestRouter(t, cfg)
	require.True(t, svc.sem.TryAcquire(1))
	go func() {
		time.Sleep(50 * time.Millisecond)
		svc.sem.Release(1)
	}()

	rec := post(t, r, "/v1/steptrace/execute", codeBody(t, "x = 1\n"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	_, r := newTestRouter(t, cfg)

	first := post(t, r, "/v1/steptrace/formulas", codeBody(t, "y = x + 1\n"))
	assert.Equal(t, http.StatusOK, first.Code)

	second := post(t, r, "/v1/steptrace/formulas", codeBody(t, "y = x + 1\n"))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	health := httptest.NewRecorder()
	r.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/v1/steptrace/health", nil))
	assert.Equal(t, http.StatusOK, health.Code, "health is never rate limited")
}

func TestHandleFormulas(t *testing.T) {
	_, r := newTestRouter(t, testConfig())

	rec := post(t, r, "/v1/steptrace/formulas", codeBody(t, "r = 2\narea = 3.14 * r**2\n"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got FormulasResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Contains(t, got.Formulas, 2)
	assert.Equal(t, "3.14 * r ** 2", got.Formulas[2].Expr)
	assert.NotContains(t, got.Formulas, 1)

	bad := post(t, r, "/v1/steptrace/formulas", codeBody(t, "x = (\n"))
	require.Equal(t, http.StatusOK, bad.Code)
	assert.JSONEq(t, `{"formulas":{}}`, bad.Body.String())
}

func TestHandleTopology(t *testing.T) {
	_, r := newTestRouter(t, testConfig())

	rec := post(t, r, "/v1/steptrace/topology", codeBody(t, "m = nn.Sequential(nn.Linear(3, 4), nn.ReLU())\n"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models":[{"model_name":"m","type":"Sequential","line":1,"layers":[
		{"layer":"Linear","in":3,"out":4,"line":1},
		{"layer":"ReLU","line":1}]}]}`, rec.Body.String())

	bad := post(t, r, "/v1/steptrace/topology", codeBody(t, "m = nn.Sequential(\n"))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	_, r := newTestRouter(t, testConfig())

	for _, path := range []string{"/health", "/v1/steptrace/health"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","version":"`+ServiceVersion+`"}`, rec.Body.String())
	}

	post(t, r, "/v1/steptrace/execute", `{"code":""}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "steptrace_rejected_total")
}

func TestCORSAndRequestID(t *testing.T) {
	_, r := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/steptrace/execute", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCORS_AllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://viz.example.com/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for origin, want := range map[string]string{
		"https://viz.example.com": "https://viz.example.com",
		"https://evil.example":    "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestService_ApplyConfig(t *testing.T) {
	cfg := testConfig()
	svc := NewService(cfg, nil)

	updated := testConfig()
	updated.Execution.MaxSourceBytes = 10
	updated.Execution.MaxSteps = 2
	svc.ApplyConfig(updated)

	assert.Equal(t, 10, svc.MaxSourceBytes())
	_, err := svc.Trace(context.Background(), []byte("x = 1 + 2 + 3\n"))
	assert.ErrorIs(t, err, ErrSourceTooLarge)

	res, err := svc.Trace(context.Background(), []byte("a = 1\n"))
	require.NoError(t, err)
	assert.False(t, res.Success, "two steps cannot hold enter, line and exit")
	assert.Equal(t, "limit", string(res.ErrorKind))
}

func TestHandleStream(t *testing.T) {
	_, r := newTestRouter(t, testConfig())
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/steptrace/stream"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(CodeRequest{Code: "x = 1\ny = x * 2\n"}))
	var kinds []string
	for {
		var msg StreamMessage
		require.NoError(t, ws.ReadJSON(&msg))
		kinds = append(kinds, msg.Type)
		if msg.Type != StreamStep {
			assert.Equal(t, StreamDone, msg.Type)
			assert.Equal(t, 4, msg.Steps)
			break
		}
	}
	assert.Equal(t, []string{"step", "step", "step", "step", "done"}, kinds)

	// Failures and invalid requests keep the connection open.
	require.NoError(t, ws.WriteJSON(CodeRequest{Code: "raise ValueError('no')\n"}))
	var failed StreamMessage
	require.NoError(t, ws.ReadJSON(&failed))
	assert.Equal(t, StreamError, failed.Type)
	assert.Equal(t, "ValueError: no", failed.Error)
	assert.Equal(t, "runtime", failed.ErrorKind)

	require.NoError(t, ws.WriteJSON(CodeRequest{}))
	var empty StreamMessage
	require.NoError(t, ws.ReadJSON(&empty))
	assert.Equal(t, StreamError, empty.Type)
	assert.Equal(t, noCodeMessage, empty.Error)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestHandleStream_RateLimitsEachMessage(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 2
	_, r := newTestRouter(t, cfg)
	srv := httptest.NewServer(r)
	defer srv.Close()

	// The upgrade takes the first token.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/steptrace/stream"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(CodeRequest{Code: "x = 1\n"}))
	for {
		var msg StreamMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type != StreamStep {
			require.Equal(t, StreamDone, msg.Type)
			break
		}
	}

	require.NoError(t, ws.WriteJSON(CodeRequest{Code: "x = 2\n"}))
	var limited StreamMessage
	require.NoError(t, ws.ReadJSON(&limited))
	assert.Equal(t, StreamError, limited.Type)
	assert.Equal(t, rateLimitedMessage, limited.Error)
	assert.Empty(t, limited.TraceID)

	// The connection stays open after a rejection.
	require.NoError(t, ws.WriteJSON(CodeRequest{Code: "x = 3\n"}))
	var again StreamMessage
	require.NoError(t, ws.ReadJSON(&again))
	assert.Equal(t, rateLimitedMessage, again.Error)
}

func TestNoRoute(t *testing.T) {
	_, r := newTestRouter(t, testConfig())
	rec := post(t, r, "/v1/steptrace/nope", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("NOT_FOUND")))
}
