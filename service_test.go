package taxonomy

import (
	"context"
	"errors"
	"testing"

	"github.com/skillatlas/taxonomy-service/config"
	"github.com/skillatlas/taxonomy-service/types"
)

func disabled(cfg *types.ServiceConfig) *types.ServiceConfig {
	cfg.Providers.ESCO.Enabled = false
	cfg.Providers.ONET.Enabled = false
	cfg.Health.Enabled = false
	return cfg
}

func TestServiceWiresFromStaticConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Name = "wiring-test"

	svc, err := NewServiceWithConfig(context.Background(), config.NewStaticConfigurationManager(disabled(cfg)))
	if err != nil {
		t.Fatalf("NewServiceWithConfig: %v", err)
	}

	if svc.Enrichment() == nil {
		t.Fatal("enrichment orchestrator must be wired")
	}
	if svc.Health() == nil {
		t.Fatal("health manager must be wired")
	}
	if svc.Cache() == nil {
		t.Fatal("cache manager must be wired")
	}
	if svc.Metrics() != nil {
		t.Fatal("metrics default off")
	}
}

func TestServiceMetricsEnabled(t *testing.T) {
	cfg := disabled(config.Defaults())
	cfg.Metrics.Enabled = true

	svc, err := NewServiceWithConfig(context.Background(), config.NewStaticConfigurationManager(cfg))
	if err != nil {
		t.Fatalf("NewServiceWithConfig: %v", err)
	}
	if svc.Metrics() == nil {
		t.Fatal("metrics manager must be built when enabled")
	}
	if svc.Metrics().Handler() == nil {
		t.Fatal("exposition handler must be available")
	}
}

func TestServiceLifecycle(t *testing.T) {
	cfg := disabled(config.Defaults())

	svc, err := NewServiceWithConfig(context.Background(), config.NewStaticConfigurationManager(cfg))
	if err != nil {
		t.Fatalf("NewServiceWithConfig: %v", err)
	}

	if svc.IsRunning() {
		t.Fatal("new service must not be running")
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.IsRunning() {
		t.Fatal("service should be running after Start")
	}
	if err := svc.Start(); !errors.Is(err, types.ErrServiceAlreadyRunning) {
		t.Fatalf("second Start: got %v, want ErrServiceAlreadyRunning", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.Stop(); !errors.Is(err, types.ErrServiceNotRunning) {
		t.Fatalf("second Stop: got %v, want ErrServiceNotRunning", err)
	}
}

func TestServiceNoProvidersEnabled(t *testing.T) {
	cfg := disabled(config.Defaults())

	svc, err := NewServiceWithConfig(context.Background(), config.NewStaticConfigurationManager(cfg))
	if err != nil {
		t.Fatalf("NewServiceWithConfig: %v", err)
	}

	_, err = svc.Enrichment().SearchSkills(context.Background(), "python", nil)
	if !errors.Is(err, types.ErrNoProvidersRequested) {
		t.Fatalf("got %v, want ErrNoProvidersRequested with all providers disabled", err)
	}
}
