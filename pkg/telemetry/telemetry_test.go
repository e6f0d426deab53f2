package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func withRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	p, err := NewWithExporter(Config{ServiceName: "test", SampleRate: 1}, exp)
	if err != nil {
		t.Fatalf("NewWithExporter: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Shutdown(context.Background())
		globalProvider = nil
	})
	return exp
}

func flush(t *testing.T) {
	t.Helper()
	if err := Get().tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestInit_Disabled(t *testing.T) {
	provider, err := Init(context.Background(), Config{Enabled: false, ServiceName: "test"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if provider.Tracer() == nil {
		t.Error("tracer should not be nil even when disabled")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestInit_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{
		Enabled:     true,
		Exporter:    "stdout",
		ServiceName: "transit-test",
		SampleRate:  1,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() { globalProvider = nil }()

	_, span := StartSpan(context.Background(), "enumerate-paths")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "enumerate-paths") {
		t.Errorf("span not exported: %s", buf.String())
	}
}

func TestGet_Uninitialized(t *testing.T) {
	globalProvider = nil

	if Get().Tracer() == nil {
		t.Error("tracer should not be nil")
	}
}

func TestSpanHelpers(t *testing.T) {
	exp := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "destroy")
	AddEvent(ctx, "route-removed", attribute.String("route", "A>B/Sea#0"))
	SetAttributes(ctx, DestroyAttributes("city", "Hong Kong", 4)...)
	SetError(ctx, errors.New("boom"))
	span.End()
	flush(t)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v", s.Status.Code)
	}
	if len(s.Events) < 2 {
		t.Errorf("expected event and error event, got %d", len(s.Events))
	}
}

func TestConnectInterceptor(t *testing.T) {
	exp := withRecorder(t)

	ok := ConnectInterceptor()(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&struct{}{}), nil
	})
	fail := ConnectInterceptor()(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("crisis active"))
	})

	if _, err := ok(context.Background(), connect.NewRequest(&struct{}{})); err != nil {
		t.Fatal(err)
	}
	if _, err := fail(context.Background(), connect.NewRequest(&struct{}{})); err == nil {
		t.Fatal("expected error")
	}
	flush(t)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Ok || spans[1].Status.Code != codes.Error {
		t.Errorf("statuses = %v, %v", spans[0].Status.Code, spans[1].Status.Code)
	}
	if spans[1].Status.Description != "crisis active" {
		t.Errorf("description = %q", spans[1].Status.Description)
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	exp := withRecorder(t)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err := UnaryServerInterceptor()(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(grpccodes.Unavailable, "not serving")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	flush(t)

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != info.FullMethod {
		t.Fatalf("unexpected spans %+v", spans)
	}
}

func TestProvider_Tracer(t *testing.T) {
	provider := &Provider{tracer: noop.NewTracerProvider().Tracer("test")}
	if provider.Tracer() == nil {
		t.Error("Tracer() should not return nil")
	}
}

func TestAttributes(t *testing.T) {
	if got := len(NetworkAttributes(3, 6, 15)); got != 3 {
		t.Errorf("network attrs = %d", got)
	}
	if got := len(PathAttributes("Shanghai", "Dubai", 12)); got != 3 {
		t.Errorf("path attrs = %d", got)
	}
	if got := len(AdvisorAttributes("heuristic", 2)); got != 2 {
		t.Errorf("advisor attrs = %d", got)
	}
}
