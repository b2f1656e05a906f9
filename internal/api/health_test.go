package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	if !strings.Contains(body, "conductor_http_requests_total") {
		t.Error("metrics output missing conductor_http_requests_total")
	}
	if !strings.Contains(body, "conductor_http_request_duration_seconds") {
		t.Error("metrics output missing conductor_http_request_duration_seconds")
	}
}

func TestMetricsLeaveStreamsOutOfLatency(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	task, err := env.manager.Submit(ctx, func() {})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := task.BlockUntilEnded(ctx); err != nil {
		t.Fatalf("BlockUntilEnded: %v", err)
	}

	resp, err := http.Get(env.ts.URL + "/v1/tasks/" + task.ID() + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	if !strings.Contains(body, `conductor_http_requests_total{method="GET",path="/v1/tasks/{id}/events",status="200"}`) {
		t.Error("event stream request was not counted")
	}
	if strings.Contains(body, `conductor_http_request_duration_seconds_count{method="GET",path="/v1/tasks/{id}/events"}`) {
		t.Error("event stream duration was recorded in the latency histogram")
	}
	if !strings.Contains(body, "conductor_http_streams_active 0") {
		t.Error("metrics output missing conductor_http_streams_active 0")
	}
}
