package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewHTTPClient_PropagatesTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	SetPropagator()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := NewHTTPClient(time.Second).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	span.End()

	if !strings.Contains(traceparent, span.SpanContext().TraceID().String()) {
		t.Errorf("expected traceparent with trace id, got %q", traceparent)
	}
	if len(recorder.Ended()) < 2 {
		t.Errorf("expected client span recorded, got %d spans", len(recorder.Ended()))
	}
}

func TestWithHTTPRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{id}", WithHTTPRoute(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx, span := tp.Tracer("test").Start(context.Background(), "server")
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/orders/abc", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	var route string
	for _, attr := range ended[0].Attributes() {
		if attr.Key == "http.route" {
			route = attr.Value.AsString()
		}
	}
	if route != "GET /orders/{id}" {
		t.Errorf("unexpected route %q", route)
	}
}
