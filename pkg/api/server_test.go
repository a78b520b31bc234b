package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesRequireAPIKey(t *testing.T) {
	_, h := setupTestServer(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/schemas", "/api/v1/schemas/x"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, h := setupTestServer(t)
	createSchema(t, h, packetSchema)

	_, resp := doRequest(t, h, "POST", "/api/v1/schemas/packet/decode", "application/json", []byte(`{"payload_hex":"`+packetHex+`"}`))
	require.True(t, resp.Success, resp.Error)
	_, resp = doRequest(t, h, "POST", "/api/v1/schemas/packet/decode", "application/json", []byte(`{"payload_hex":"80"}`))
	require.False(t, resp.Success)

	m := server.metrics
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeOperationsTotal.WithLabelValues("decode", statusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeOperationsTotal.WithLabelValues("decode", statusError)))
	assert.Equal(t, float64(80), testutil.ToFloat64(m.bitsDecodedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventHeadersTotal.WithLabelValues("compact", "short")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.schemaOperationsTotal.WithLabelValues("put", statusSuccess)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.authRequestsTotal.WithLabelValues(statusSuccess)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "bitctf_http_requests_total")
	assert.Contains(t, body, `endpoint="/api/v1/schemas/{id}/decode"`)
	assert.Contains(t, body, "bitctf_bits_decoded_total 80")
}

func TestMetricsAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordHealthCheck(true)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.healthChecksTotal.WithLabelValues(statusSuccess)))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.healthChecksTotal.WithLabelValues(statusSuccess)))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	server, _ := setupTestServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, l) }()

	req, err := http.NewRequest("GET", "http://"+l.Addr().String()+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "healthy"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartServerInvalidAddress(t *testing.T) {
	server, _ := setupTestServer(t)

	err := StartServer(context.Background(), server.store, ServerConfig{Bind: "256.0.0.1", Port: 1}, server.logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
