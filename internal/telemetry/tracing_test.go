package telemetry

import (
	"context"
	"testing"

	"github.com/clubsite/server/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingNoneExporter(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, config.TracingConfig{
		Enabled:     true,
		Exporter:    "none",
		ServiceName: "clubsite-test",
		SampleRate:  0.5,
	}, "test")
	require.NoError(t, err)
	defer func() { _ = shutdown(ctx) }()

	_, span := Tracer("test").Start(ctx, "op")
	span.End()
}

func TestInitTracingRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{name: "sample rate", cfg: config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 1.5}},
		{name: "exporter", cfg: config.TracingConfig{Enabled: true, Exporter: "jaeger", SampleRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitTracing(context.Background(), tt.cfg, "test")
			assert.Error(t, err)
		})
	}
}
