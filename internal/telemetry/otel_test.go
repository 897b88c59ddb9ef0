package telemetry

import "testing"

// The exporter client connects lazily, so setup succeeds without a
// collector; a missing collector only surfaces on export.
func TestInitTracerReturnsCleanup(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "collector:4318")
	cleanup, err := InitTracer("nativebridge-test")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected a shutdown function")
	}
	cleanup()
}

func TestInitTracerAcceptsURLEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "https://collector.internal/v1/traces")
	cleanup, err := InitTracer("nativebridge-test")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	cleanup()
}
