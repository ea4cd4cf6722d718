package telemetry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		endpoint    string
	}{
		{name: "valid configuration", serviceName: "maint-api", endpoint: "localhost:4318"},
		{name: "empty service name", serviceName: "", endpoint: "localhost:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.serviceName, tt.endpoint)
			if err != nil {
				t.Fatalf("InitTracer() error = %v", err)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := Shutdown(shutdownCtx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name        string
		settings    Settings
		wantEnabled bool
		wantLog     string
	}{
		{name: "disabled", settings: Settings{Endpoint: "localhost:4318"}},
		{name: "enabled without endpoint", settings: Settings{Enabled: true}, wantLog: "otel_enabled_but_endpoint_not_configured"},
		{name: "enabled", settings: Settings{Enabled: true, Endpoint: "localhost:4318", ServiceName: "maint-api"}, wantEnabled: true, wantLog: "otel_tracer_initialized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			shutdown, enabled := Setup(context.Background(), tt.settings, zap.New(core))
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					t.Errorf("shutdown() error = %v", err)
				}
			}()

			if enabled != tt.wantEnabled {
				t.Errorf("enabled = %v, want %v", enabled, tt.wantEnabled)
			}
			if tt.wantLog != "" && logs.FilterMessage(tt.wantLog).Len() != 1 {
				t.Errorf("expected log %q, got %v", tt.wantLog, logs.All())
			}
		})
	}
}
