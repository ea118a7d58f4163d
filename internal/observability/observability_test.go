package observability

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_Disabled(t *testing.T) {
	if err := Init(Config{Exporter: "none"}, zerolog.Nop()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "test-span")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil")
	}
	span.End()

	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	if err := Init(Config{Exporter: "zipkin"}, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestInit_Stdout(t *testing.T) {
	if err := Init(Config{Exporter: "stdout", ServiceName: "test"}, zerolog.Nop()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Shutdown(context.Background())
		tracerProvider = nil
		tracer = nil
	})

	_, span := StartSpan(context.Background(), "stdout-span")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span with a valid context")
	}
	span.End()
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"single", "Authorization=Bearer x", map[string]string{"Authorization": "Bearer x"}},
		{"multiple", "a=1, b=2", map[string]string{"a": "1", "b": "2"}},
		{"skips malformed", "a=1,garbage,=3", map[string]string{"a": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHeaders(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseHeaders(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "k=v")

	cfg := ConfigFromEnv()
	if cfg.ServiceName != "svc" || cfg.Exporter != "stdout" || cfg.Headers["k"] != "v" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
