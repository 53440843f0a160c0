package metrics

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/hpobench/internal/benchmark"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.ObserveCall("ObjectiveFunction", "OK", 20*time.Millisecond)
	r.ObserveCall("ObjectiveFunction", "OK", 30*time.Millisecond)
	r.ObserveCall("Init", "NotFound", time.Millisecond)
	r.ObserveEvaluation("lcbench", "3945", -91.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.calls.WithLabelValues("ObjectiveFunction", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.calls.WithLabelValues("Init", "NotFound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evaluations.WithLabelValues("lcbench", "3945")))
	assert.Equal(t, -91.5, testutil.ToFloat64(r.lastValue.WithLabelValues("lcbench", "3945")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveCall("Init", "OK", time.Second)
		r.ObserveEvaluation("lcbench", "3945", 1)
	})
	assert.Nil(t, r.Registry())
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestRouter(t *testing.T) {
	r := NewRecorder()
	r.ObserveEvaluation("rbv2_svm", "31", -0.9)
	meta := &benchmark.MetaInformation{Name: "YAHPO Gym", Code: "https://example.org"}
	router := NewRouter(r, func() (*benchmark.MetaInformation, error) { return meta, nil })

	code, body := get(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, body = get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `hpobench_evaluations_total{instance="31",scenario="rbv2_svm"} 1`)

	code, body = get(t, router, "/meta")
	assert.Equal(t, http.StatusOK, code)
	var got benchmark.MetaInformation
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "YAHPO Gym", got.Name)
}

func TestRouterMetaUnavailable(t *testing.T) {
	router := NewRouter(nil, func() (*benchmark.MetaInformation, error) { return nil, errors.New("not initialized") })
	code, body := get(t, router, "/meta")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "not initialized")

	code, _ = get(t, router, "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}
