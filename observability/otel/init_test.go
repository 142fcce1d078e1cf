package otel

import (
	"context"
	"testing"
	"time"

	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =skip,tenant=hub")
	if len(headers) != 2 || headers["api-key"] != "abc" || headers["tenant"] != "hub" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", " collector:4318 ")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x=1")
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "5000")

	cfg := FromEnv("hubd", "dev")
	if cfg.Endpoint != "collector:4318" || cfg.Insecure || cfg.Headers["x"] != "1" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Traces || !cfg.Metrics || cfg.ServiceName != "hubd" {
		t.Fatalf("exporters must default on: %+v", cfg)
	}
	if cfg.ExportInterval != 5*time.Second {
		t.Fatalf("unexpected export interval %s", cfg.ExportInterval)
	}
}

func TestFromEnvDisablesSignals(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "None")
	t.Setenv("OTEL_METRICS_EXPORTER", "otlp")

	cfg := FromEnv("hubd", "")
	if cfg.Traces || !cfg.Metrics {
		t.Fatalf("expected traces off and metrics on: %+v", cfg)
	}
}

func TestResourceCarriesServiceIdentity(t *testing.T) {
	res, err := Resource(Config{ServiceName: "hubd", ServiceVersion: "1.2.3", InstanceID: "node-a", Environment: "prod"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	want := map[string]string{
		string(semconv.ServiceNameKey):           "hubd",
		string(semconv.ServiceNamespaceKey):      Namespace,
		string(semconv.ServiceVersionKey):        "1.2.3",
		string(semconv.ServiceInstanceIDKey):     "node-a",
		string(semconv.DeploymentEnvironmentKey): "prod",
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, got[key], value)
		}
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "hubd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
