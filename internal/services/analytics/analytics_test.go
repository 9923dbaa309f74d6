package analytics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/pkg/config"
)

func newBase(t *testing.T, h http.Handler, retries int) *HTTPServiceBase {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPServiceBase(config.AnalyticsConfig{ServiceURL: srv.URL + "/", Timeout: time.Second, Retries: retries})
}

func TestHTTPClassifier_FiltersAndClamps(t *testing.T) {
	base := newBase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"AAPL", "MSFT"}, req.Symbols)
		assert.True(t, req.CrashMode)
		_, _ = io.WriteString(w, `{"predictions":[
			{"symbol":"aapl","probability":1.4},
			{"symbol":"MSFT","probability":0.62,"features":{"rsi":41}},
			{"symbol":"TSLA","probability":0.9}
		]}`)
	}), 0)

	preds, err := NewHTTPClassifier(base).GeneratePredictions(context.Background(), []string{"AAPL", "MSFT"}, true)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "AAPL", preds[0].Symbol)
	assert.Equal(t, 1.0, preds[0].Probability)
	assert.Equal(t, 0.62, preds[1].Probability)
	assert.Equal(t, 41.0, preds[1].Features["rsi"])
}

func TestHTTPClassifier_RetriesThenFails(t *testing.T) {
	var calls int32
	base := newBase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}), 2)

	_, err := NewHTTPClassifier(base).GeneratePredictions(context.Background(), []string{"AAPL"}, false)
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPSentiment_CachesAndClamps(t *testing.T) {
	var calls int32
	base := newBase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/sentiment", r.URL.Path)
		_, _ = io.WriteString(w, `{"symbol":"AAPL","score":-3}`)
	}), 0)
	s := NewHTTPSentiment(base, time.Minute)

	v, err := s.SymbolSentiment(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)

	v, err = s.SymbolSentiment(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPServiceBase_Disabled(t *testing.T) {
	base := NewHTTPServiceBase(config.AnalyticsConfig{})
	assert.False(t, base.Enabled())
	_, err := NewHTTPClassifier(base).GeneratePredictions(context.Background(), []string{"AAPL"}, false)
	assert.Error(t, err)
}
