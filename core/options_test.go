package core

import (
	"context"
	"testing"
)

func TestCfgxConfigProviderOverlaysDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"providers": map[string]any{
			"default": "mailgun",
			"mailgun": map[string]any{
				"domain":  "mg.example.com",
				"api_key": "key-123",
			},
		},
		"validity": map[string]any{
			"chunk_size": 250,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.Default != "mailgun" {
		t.Fatalf("expected mailgun default, got %q", cfg.Providers.Default)
	}
	if cfg.Providers.Mailgun.Domain != "mg.example.com" {
		t.Fatalf("expected domain loaded, got %q", cfg.Providers.Mailgun.Domain)
	}
	if cfg.Validity.ChunkSize != 250 {
		t.Fatalf("expected chunk size 250, got %d", cfg.Validity.ChunkSize)
	}
	if cfg.ServiceName != "mailroom" {
		t.Fatalf("expected default service name kept, got %q", cfg.ServiceName)
	}
	if cfg.Dispatch.SendTimeoutSeconds != DefaultSendTimeoutSecs {
		t.Fatalf("expected default timeout kept, got %d", cfg.Dispatch.SendTimeoutSeconds)
	}
}

func TestGoOptionsResolverPrecedence(t *testing.T) {
	defaults := DefaultConfig()
	loaded := defaults
	loaded.Validity.ChunkSize = 200
	loaded.Providers.Default = "mailgun"
	runtime := Config{
		Validity: ValidityConfig{ChunkSize: 10},
	}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatal(err)
	}
	// Runtime overrides loaded, loaded overrides defaults.
	if resolved.Validity.ChunkSize != 10 {
		t.Fatalf("expected runtime chunk size, got %d", resolved.Validity.ChunkSize)
	}
	if resolved.Providers.Default != "mailgun" {
		t.Fatalf("expected loaded default provider, got %q", resolved.Providers.Default)
	}
	if resolved.ServiceName != "mailroom" {
		t.Fatalf("expected default service name, got %q", resolved.ServiceName)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	cfg.ServiceName = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty service name")
	}

	cfg = DefaultConfig()
	cfg.Dispatch.SendTimeoutSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
