package config

import (
	"testing"
	"time"
)

func TestLoadRequiresMySQLDSN(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatal("expected an error without MYSQL_DSN")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/billing")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTP.Port)
	}
	if cfg.Stripe.Enabled {
		t.Fatal("expected stripe to be disabled by default")
	}
	if cfg.Stripe.SignatureToleranceSeconds != 300 {
		t.Fatalf("expected default tolerance 300s, got %d", cfg.Stripe.SignatureToleranceSeconds)
	}
	if cfg.Payments.JobBatchSize != 100 {
		t.Fatalf("expected default batch size 100, got %d", cfg.Payments.JobBatchSize)
	}
	if cfg.Jobs.ExpireVouchersInterval != 5*time.Minute {
		t.Fatalf("expected default expiry interval 5m, got %s", cfg.Jobs.ExpireVouchersInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/billing")
	t.Setenv("STRIPE_ENABLED", "true")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", "600")
	t.Setenv("BILLING_JOB_BATCH_SIZE", "25")
	t.Setenv("BILLING_SUBMIT_MAX_RETRIES", "5")
	t.Setenv("BILLING_EXPIRE_VOUCHERS_INTERVAL_MINUTES", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Stripe.Active() {
		t.Fatal("expected stripe to be active with flag and key set")
	}
	if cfg.Stripe.SignatureToleranceSeconds != 600 {
		t.Fatalf("expected tolerance 600s, got %d", cfg.Stripe.SignatureToleranceSeconds)
	}
	if cfg.Payments.JobBatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.Payments.JobBatchSize)
	}
	if cfg.Payments.SubmitMaxRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", cfg.Payments.SubmitMaxRetries)
	}
	if cfg.Jobs.ExpireVouchersInterval != 15*time.Minute {
		t.Fatalf("expected expiry interval 15m, got %s", cfg.Jobs.ExpireVouchersInterval)
	}
}

func TestStripeConfigActive(t *testing.T) {
	cases := []struct {
		name   string
		cfg    StripeConfig
		active bool
	}{
		{"disabled", StripeConfig{Enabled: false, SecretKey: "sk_test"}, false},
		{"enabled without key", StripeConfig{Enabled: true}, false},
		{"enabled with blank key", StripeConfig{Enabled: true, SecretKey: "   "}, false},
		{"enabled with key", StripeConfig{Enabled: true, SecretKey: "sk_test"}, true},
	}

	for _, tc := range cases {
		if got := tc.cfg.Active(); got != tc.active {
			t.Fatalf("%s: expected active=%v, got %v", tc.name, tc.active, got)
		}
	}
}
