package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Defaults()
	cfg.Telegram.Token = "123:abc"
	cfg.Upbit.Enabled = true
	cfg.Upbit.AccessKey = "ak"
	cfg.Upbit.SecretKey = "sk"
	cfg.Sheets.RatioHigh = 1.3

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", loaded.Telegram.Token)
	}
	if !loaded.Upbit.Enabled || loaded.Upbit.AccessKey != "ak" {
		t.Errorf("upbit = %+v", loaded.Upbit)
	}
	if loaded.Sheets.RatioHigh != 1.3 {
		t.Errorf("ratio high = %v", loaded.Sheets.RatioHigh)
	}
	// Untouched fields keep their defaults through the round trip.
	if loaded.Upbit.CommandText != "업비트 기록 수행" {
		t.Errorf("command text = %q", loaded.Upbit.CommandText)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("FILLBOT_TEST_TOKEN", "tok-from-env")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Telegram.Token = "${FILLBOT_TEST_TOKEN}"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Telegram.Token != "tok-from-env" {
		t.Fatalf("token = %q, want env value", loaded.Telegram.Token)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FILLBOT_SET", "value")
	os.Unsetenv("FILLBOT_UNSET")

	for _, tc := range []struct {
		in   string
		want string
	}{
		{"${FILLBOT_SET}", "value"},
		{"${FILLBOT_UNSET:-fallback}", "fallback"},
		{"${FILLBOT_UNSET}", "${FILLBOT_UNSET}"}, // kept verbatim
		{"prefix-${FILLBOT_SET}-suffix", "prefix-value-suffix"},
		{"no vars here", "no vars here"},
	} {
		if got := ExpandEnvVars(tc.in); got != tc.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad timezone", func(c *Config) { c.General.Timezone = "Mars/Olympus" }, "timezone"},
		{"poll timeout too large", func(c *Config) { c.Telegram.PollTimeout = 301 }, "pollTimeoutSeconds"},
		{"ratio inverted", func(c *Config) { c.Sheets.RatioLow = 1.5 }, "ratioLow"},
		{"bad ref cell", func(c *Config) { c.Sheets.RefCells.AvgPrice = "6R" }, "refCells.avgPrice"},
		{"upbit enabled without market", func(c *Config) { c.Upbit.Enabled = true; c.Upbit.Market = "" }, "upbit.market"},
		{"empty command text", func(c *Config) { c.Upbit.CommandText = "" }, "commandText"},
	} {
		cfg := Defaults()
		tc.mutate(cfg)
		err := Validate(cfg)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestSanitizeMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456:very-secret-token"
	cfg.Upbit.AccessKey = "access-key-value"
	cfg.Upbit.SecretKey = "secret-key-value"

	s := Sanitize(cfg)
	if strings.Contains(s.Telegram.Token, "very-secret") {
		t.Errorf("token not masked: %q", s.Telegram.Token)
	}
	if strings.Contains(s.Upbit.SecretKey, "secret-key-value") {
		t.Errorf("secret key not masked: %q", s.Upbit.SecretKey)
	}
	// The original must be untouched.
	if cfg.Telegram.Token != "123456:very-secret-token" {
		t.Error("Sanitize mutated the original config")
	}
}

func TestGetSetByPath(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "upbit.maxPages", "50"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.Upbit.MaxPages != 50 {
		t.Fatalf("maxPages = %d, want 50", cfg.Upbit.MaxPages)
	}

	v, err := GetByPath(cfg, "upbit.maxPages")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	// JSON round-tripping yields float64 for numeric values.
	if v != float64(50) {
		t.Fatalf("GetByPath = %v (%T), want 50", v, v)
	}

	if _, err := GetByPath(cfg, "no.such.path"); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	content := `targets:
  tqqq:
    spreadsheetId: "sheet-tqqq"
    worksheet: "기록"
  BTC:
    spreadsheetId: "sheet-btc"
    currency: krw
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	targets, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets: %v", err)
	}

	tqqq, ok := targets["TQQQ"]
	if !ok {
		t.Fatal("lowercase symbol must be normalized to TQQQ")
	}
	if tqqq.SpreadsheetID != "sheet-tqqq" || tqqq.Worksheet != "기록" {
		t.Errorf("tqqq = %+v", tqqq)
	}
	if tqqq.Currency != "USD" {
		t.Errorf("tqqq currency = %q, want USD fallback", tqqq.Currency)
	}

	btc := targets["BTC"]
	if btc.Currency != "KRW" {
		t.Errorf("btc currency = %q, want KRW", btc.Currency)
	}
}

func TestLoadTargetsRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	for name, content := range map[string]string{
		"empty.yaml":        "targets: {}\n",
		"no-sheet-id.yaml":  "targets:\n  TQQQ:\n    currency: USD\n",
		"bad-currency.yaml": "targets:\n  TQQQ:\n    spreadsheetId: x\n    currency: EUR\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTargets(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDefaultCurrency(t *testing.T) {
	if DefaultCurrency("btc") != "KRW" {
		t.Error("btc should default to KRW")
	}
	if DefaultCurrency("TQQQ") != "USD" {
		t.Error("equities should default to USD")
	}
}

func TestSaveTargetsSkeleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := SaveTargetsSkeleton(path); err != nil {
		t.Fatalf("SaveTargetsSkeleton: %v", err)
	}
	// Never overwrite an existing file.
	if err := SaveTargetsSkeleton(path); err == nil {
		t.Fatal("expected error on existing file")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %q", got)
	}
}
