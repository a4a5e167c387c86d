package config

import (
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/price-sentinel/models"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty redis url",
			mutate: func(cfg *Config) {
				cfg.RedisURL = ""
			},
			wantErr: "redis URL",
		},
		{
			name: "empty database url",
			mutate: func(cfg *Config) {
				cfg.DatabaseURL = ""
			},
			wantErr: "database URL",
		},
		{
			name: "negative fetch timeout",
			mutate: func(cfg *Config) {
				cfg.FetchTimeout = -1 * time.Second
			},
			wantErr: "fetch timeout",
		},
		{
			name: "zero workers",
			mutate: func(cfg *Config) {
				cfg.FetchWorkers = 0
			},
			wantErr: "fetch workers",
		},
		{
			name: "zero commit batch",
			mutate: func(cfg *Config) {
				cfg.CommitBatch = 0
			},
			wantErr: "commit batch",
		},
		{
			name: "empty user agent",
			mutate: func(cfg *Config) {
				cfg.UserAgent = ""
			},
			wantErr: "user agent",
		},
		{
			name: "no sources",
			mutate: func(cfg *Config) {
				cfg.Sources = nil
			},
			wantErr: "at least one source",
		},
		{
			name: "category url without host",
			mutate: func(cfg *Config) {
				cfg.OfficeDepotURLs = []string{"/relative/path"}
			},
			wantErr: "must include a host",
		},
		{
			name: "zero scan interval",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourceAmazon]
				sc.Interval = 0
				cfg.Sources[models.SourceAmazon] = sc
			},
			wantErr: "scan interval",
		},
		{
			name: "zero failure threshold",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourceAmazon]
				sc.FailureThreshold = 0
				cfg.Sources[models.SourceAmazon] = sc
			},
			wantErr: "failure threshold",
		},
		{
			name: "zero alert ttl",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourceOfficeDepot]
				sc.AlertTTL = 0
				cfg.Sources[models.SourceOfficeDepot] = sc
			},
			wantErr: "alert TTL",
		},
		{
			name: "both drop thresholds disabled",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourceMercadoLibre]
				sc.MinDropPct = 0
				sc.MinDropAmount = 0
				cfg.Sources[models.SourceMercadoLibre] = sc
			},
			wantErr: "at least one drop threshold",
		},
		{
			name: "walmart category url without host",
			mutate: func(cfg *Config) {
				cfg.WalmartURLs = []string{"/content/tv-y-video"}
			},
			wantErr: "must include a host",
		},
		{
			name: "negative maximum price",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourcePromoDescuentos]
				sc.MaxPrice = -1
				cfg.Sources[models.SourcePromoDescuentos] = sc
			},
			wantErr: "maximum price cannot be negative",
		},
		{
			name: "maximum price below minimum",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourcePromoDescuentos]
				sc.MinPrice = 500
				sc.MaxPrice = 100
				cfg.Sources[models.SourcePromoDescuentos] = sc
			},
			wantErr: "maximum price cannot be below",
		},
		{
			name: "negative minimum temperature",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourcePromoDescuentos]
				sc.MinTemperature = -10
				cfg.Sources[models.SourcePromoDescuentos] = sc
			},
			wantErr: "minimum temperature",
		},
		{
			name: "zero alert cap",
			mutate: func(cfg *Config) {
				sc := cfg.Sources[models.SourcePromoDescuentos]
				sc.MaxAlertsPerScan = 0
				cfg.Sources[models.SourcePromoDescuentos] = sc
			},
			wantErr: "max alerts per scan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultConfigSourceThresholds(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		source   models.Source
		failures int64
		empty    int64
		interval time.Duration
		ttl      time.Duration
	}{
		{models.SourceAmazon, 3, 20, 10 * time.Minute, 24 * time.Hour},
		{models.SourcePromoDescuentos, 3, 10, time.Minute, 12 * time.Hour},
		{models.SourceOfficeDepot, 3, 50, 5 * time.Minute, 24 * time.Hour},
		{models.SourceMercadoLibre, 3, 20, 30 * time.Minute, 24 * time.Hour},
		{models.SourceWalmart, 3, 20, 30 * time.Minute, 24 * time.Hour},
	}

	for _, tt := range tests {
		sc := cfg.Source(tt.source)
		if sc.FailureThreshold != tt.failures || sc.EmptyThreshold != tt.empty {
			t.Fatalf("%s thresholds = %d/%d, want %d/%d",
				tt.source, sc.FailureThreshold, sc.EmptyThreshold, tt.failures, tt.empty)
		}
		if sc.Interval != tt.interval {
			t.Fatalf("%s interval = %v, want %v", tt.source, sc.Interval, tt.interval)
		}
		if sc.AlertTTL != tt.ttl {
			t.Fatalf("%s alert ttl = %v, want %v", tt.source, sc.AlertTTL, tt.ttl)
		}
	}
}

func TestDefaultPromoDescuentosFilters(t *testing.T) {
	sc := DefaultConfig().Source(models.SourcePromoDescuentos)
	if sc.MinPrice != 100 || sc.MaxPrice != 100000 {
		t.Fatalf("price range = [%.0f, %.0f], want [100, 100000]", sc.MinPrice, sc.MaxPrice)
	}
	if sc.MinTemperature != 100 {
		t.Fatalf("min temperature = %.0f, want 100", sc.MinTemperature)
	}
	if len(sc.ExcludedKeywords) == 0 {
		t.Fatalf("excluded keywords should be configured")
	}
	for _, keyword := range []string{"gratis", "kindle"} {
		found := false
		for _, have := range sc.ExcludedKeywords {
			if have == keyword {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("excluded keywords missing %q: %v", keyword, sc.ExcludedKeywords)
		}
	}
}

func TestSourceFallsBackForUnknownSource(t *testing.T) {
	cfg := DefaultConfig()
	sc := cfg.Source(models.Source("liverpool"))
	if sc.Interval <= 0 || sc.FailureThreshold <= 0 {
		t.Fatalf("fallback source config should be usable, got %+v", sc)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PS_TEST_STR", "hello")
	t.Setenv("PS_TEST_INT", "42")
	t.Setenv("PS_TEST_FLOAT", "12.5")
	t.Setenv("PS_TEST_BAD_INT", "nope")

	if v, ok := EnvString("PS_TEST_STR"); !ok || v != "hello" {
		t.Fatalf("EnvString = %q, %v", v, ok)
	}
	if _, ok := EnvString("PS_TEST_ABSENT"); ok {
		t.Fatalf("absent variable reported present")
	}
	if v, ok, err := EnvInt("PS_TEST_INT"); err != nil || !ok || v != 42 {
		t.Fatalf("EnvInt = %d, %v, %v", v, ok, err)
	}
	if _, _, err := EnvInt("PS_TEST_BAD_INT"); err == nil {
		t.Fatalf("malformed int should error")
	}
	if v, ok, err := EnvFloat("PS_TEST_FLOAT"); err != nil || !ok || v != 12.5 {
		t.Fatalf("EnvFloat = %v, %v, %v", v, ok, err)
	}
}
