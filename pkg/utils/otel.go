// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// OTel protocol and exporter values
const (
	OTelProtocolGRPC = "grpc"
	OTelProtocolHTTP = "http"

	OTelExporterOTLP = "otlp"
	OTelExporterNone = "none"
)

const defaultOTelServiceName = "lfx-v2-meeting-attendance-service"

// OTelConfig holds the OpenTelemetry SDK settings.
type OTelConfig struct {
	ServiceName       string
	ServiceVersion    string
	Protocol          string
	Endpoint          string
	Insecure          bool
	TracesExporter    string
	TracesSampleRatio float64
	MetricsExporter   string
	LogsExporter      string
}

// OTelConfigFromEnv reads the OTEL_* environment variables. Exporters
// default to "none" so a bare deployment emits no telemetry.
func OTelConfigFromEnv() OTelConfig {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaultOTelServiceName
	}

	protocol := OTelProtocolGRPC
	if p := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); strings.HasPrefix(p, OTelProtocolHTTP) {
		protocol = OTelProtocolHTTP
	}

	ratio := 1.0
	if raw := os.Getenv("OTEL_TRACES_SAMPLE_RATIO"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
			ratio = parsed
		}
	}

	return OTelConfig{
		ServiceName:       serviceName,
		ServiceVersion:    os.Getenv("OTEL_SERVICE_VERSION"),
		Protocol:          protocol,
		Endpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:          os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		TracesExporter:    exporterFromEnv("OTEL_TRACES_EXPORTER"),
		TracesSampleRatio: ratio,
		MetricsExporter:   exporterFromEnv("OTEL_METRICS_EXPORTER"),
		LogsExporter:      exporterFromEnv("OTEL_LOGS_EXPORTER"),
	}
}

func exporterFromEnv(key string) string {
	if os.Getenv(key) == OTelExporterOTLP {
		return OTelExporterOTLP
	}
	return OTelExporterNone
}

// SetupOTelSDK bootstraps the OpenTelemetry pipeline from the environment.
func SetupOTelSDK(ctx context.Context) (func(context.Context) error, error) {
	return SetupOTelSDKWithConfig(ctx, OTelConfigFromEnv())
}

// SetupOTelSDKWithConfig bootstraps the OpenTelemetry pipeline. The returned
// shutdown func flushes every provider that was started and may be called
// more than once.
func SetupOTelSDKWithConfig(ctx context.Context, cfg OTelConfig) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	res, err := newResource(cfg)
	if err != nil {
		handleErr(err)
		return shutdown, err
	}

	otel.SetTextMapPropagator(newPropagator())

	if cfg.TracesExporter != OTelExporterNone {
		tp, err := newTraceProvider(ctx, cfg, res)
		if err != nil {
			handleErr(err)
			return shutdown, err
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsExporter != OTelExporterNone {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			handleErr(err)
			return shutdown, err
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	if cfg.LogsExporter != OTelExporterNone {
		lp, err := newLoggerProvider(ctx, cfg, res)
		if err != nil {
			handleErr(err)
			return shutdown, err
		}
		shutdownFuncs = append(shutdownFuncs, lp.Shutdown)
		global.SetLoggerProvider(lp)
	}

	return shutdown, nil
}

func newResource(cfg OTelConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		jaeger.Jaeger{},
	)
}

func newTraceProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if cfg.Protocol == OTelProtocolHTTP {
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	} else {
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TracesSampleRatio))),
	), nil
}

func newMeterProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	if cfg.Protocol == OTelProtocolHTTP {
		var opts []otlpmetrichttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	} else {
		var opts []otlpmetricgrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}

func newLoggerProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)
	if cfg.Protocol == OTelProtocolHTTP {
		var opts []otlploghttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	} else {
		var opts []otlploggrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}
