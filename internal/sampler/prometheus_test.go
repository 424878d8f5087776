package sampler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/logging"
	"github.com/socialeye/internal/models"
)

func TestBuildQuery(t *testing.T) {
	q, err := buildQuery("api.errors", 10*time.Minute, models.AggregationSum)
	require.NoError(t, err)
	assert.Equal(t, `sum(sum_over_time({__name__="api.errors"}[10m]))`, q)

	q, err = buildQuery("response_time", 5*time.Minute, models.AggregationCount)
	require.NoError(t, err)
	assert.Equal(t, `sum(count_over_time({__name__="response_time"}[5m]))`, q)

	_, err = buildQuery("m", 0, models.AggregationAvg)
	assert.Error(t, err)
}

func TestPrometheusSampler_Vector(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.Form.Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000,"2500"]}]}}`))
	}))
	defer srv.Close()

	p, err := NewPrometheusSampler(srv.URL, logging.Discard())
	require.NoError(t, err)

	end := time.Now()
	v, err := p.Sample(context.Background(), "response_time", end.Add(-10*time.Minute), end, models.AggregationAvg)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, v)
	assert.Equal(t, `avg(avg_over_time({__name__="response_time"}[10m]))`, gotQuery)
}

func TestPrometheusSampler_EmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
	}))
	defer srv.Close()

	p, err := NewPrometheusSampler(srv.URL, logging.Discard())
	require.NoError(t, err)

	end := time.Now()
	v, err := p.Sample(context.Background(), "m", end.Add(-time.Minute), end, models.AggregationSum)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestPrometheusSampler_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	p, err := NewPrometheusSampler(srv.URL, logging.Discard())
	require.NoError(t, err)

	end := time.Now()
	_, err = p.Sample(context.Background(), "m", end.Add(-time.Minute), end, models.AggregationSum)
	assert.Error(t, err)
}
