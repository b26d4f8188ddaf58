package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/salon-scheduler/internal/config"
	"github.com/wolfman30/salon-scheduler/internal/events"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

func TestSetupMetricsExposesSchedulingMetrics(t *testing.T) {
	handler, m := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.ObserveOperation("create", "ok", 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "salon_scheduling_operations_total")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestOutboxHandlerLogsWithoutQueue(t *testing.T) {
	handler, err := outboxHandler(t.Context(), &appconfig.Config{}, logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, &events.LogHandler{}, handler)
}

func TestOutboxHandlerUsesSQSWhenQueueConfigured(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:            "us-east-1",
		AWSAccessKeyID:       "test",
		AWSSecretAccessKey:   "test",
		AWSEndpointOverride:  "http://localhost:4566",
		NotificationQueueURL: "http://localhost:4566/000000000000/salon-notifications",
	}
	handler, err := outboxHandler(t.Context(), cfg, logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, &events.SQSPublisher{}, handler)
}

func TestOutboxHandlerFansOutToArchive(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:            "us-east-1",
		AWSAccessKeyID:       "test",
		AWSSecretAccessKey:   "test",
		AWSEndpointOverride:  "http://localhost:4566",
		NotificationQueueURL: "http://localhost:4566/000000000000/salon-notifications",
		EventArchiveBucket:   "salon-events",
	}
	handler, err := outboxHandler(t.Context(), cfg, logging.New("error"))
	require.NoError(t, err)

	fanout, ok := handler.(events.Fanout)
	require.True(t, ok)
	require.Len(t, fanout, 2)
	assert.IsType(t, &events.SQSPublisher{}, fanout[0])
	assert.IsType(t, &events.Archiver{}, fanout[1])
}
