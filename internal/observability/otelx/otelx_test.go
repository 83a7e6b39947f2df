package otelx

import (
	"context"
	"testing"

	"github.com/bakkerme/matchday/internal/config"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), nil, config.OTelEnvConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), nil, config.OTelEnvConfig{Enabled: true, Protocol: "carrier-pigeon"})
	if err == nil {
		t.Fatalf("expected error for unknown protocol")
	}
}

func TestEndpointDefaults(t *testing.T) {
	cases := []struct {
		cfg  config.OTelEnvConfig
		want string
	}{
		{config.OTelEnvConfig{}, "localhost:4317"},
		{config.OTelEnvConfig{Protocol: "http"}, "localhost:4318"},
		{config.OTelEnvConfig{Endpoint: " collector:4317 "}, "collector:4317"},
	}
	for _, tc := range cases {
		if got := endpoint(tc.cfg); got != tc.want {
			t.Fatalf("endpoint(%+v)=%q want %q", tc.cfg, got, tc.want)
		}
	}
}

func TestGRPCHostStripsScheme(t *testing.T) {
	got, err := grpcHost("https://otel.example.com:4317")
	if err != nil {
		t.Fatalf("grpcHost: %v", err)
	}
	if got != "otel.example.com:4317" {
		t.Fatalf("unexpected host %q", got)
	}
	if got, _ := grpcHost("collector:4317"); got != "collector:4317" {
		t.Fatalf("unexpected passthrough %q", got)
	}
}
