package main

import (
	"context"
	"path/filepath"
	"testing"

	"pharmaledger/backend/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		ShopStateCode: "33",
		TxMaxAttempts: 3,
	}
}

func TestValidateConfigAcceptsStrongValues(t *testing.T) {
	if err := validateConfig(validConfig()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"short secret":   func(c *config.Config) { c.AuthSecret = "short" },
		"state letters":  func(c *config.Config) { c.ShopStateCode = "TN" },
		"state length":   func(c *config.Config) { c.ShopStateCode = "331" },
		"zero attempts":  func(c *config.Config) { c.TxMaxAttempts = 0 },
		"too many tries": func(c *config.Config) { c.TxMaxAttempts = 11 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, backend, err := openRepository(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("expected memory repository, got %v", err)
	}
	defer repo.Close()
	if backend != "memory" {
		t.Fatalf("expected memory backend, got %s", backend)
	}
}

func TestOpenRepositoryUsesSQLitePath(t *testing.T) {
	cfg := config.Config{SQLitePath: filepath.Join(t.TempDir(), "ledger.db")}
	repo, backend, err := openRepository(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected sqlite repository, got %v", err)
	}
	defer repo.Close()
	if backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %s", backend)
	}
	if _, err := repo.GetInvoiceCounter(context.Background(), "24-25"); err != nil {
		t.Fatalf("expected migrated schema, got %v", err)
	}
}
