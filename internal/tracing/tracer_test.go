package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kadirpekel/taskforge/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(config.TracingConfig{Enabled: false}, &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	_, span := GetTracer("test").Start(context.Background(), "op")
	span.End()

	if buf.Len() != 0 {
		t.Fatalf("expected no exporter output when tracing is disabled, got %q", buf.String())
	}
}

func TestInitEnabledExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(config.TracingConfig{Enabled: true, ServiceName: "test", SamplingRate: 1.0}, &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := GetTracer("test").Start(context.Background(), "op")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\"Name\"") || !strings.Contains(out, "\"op\"") {
		t.Fatalf("expected exported span named %q, got %q", "op", out)
	}
}
