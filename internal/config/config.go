package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration for fillbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Telegram TelegramConfig `json:"telegram"`
	Upbit    UpbitConfig    `json:"upbit"`
	Sheets   SheetsConfig   `json:"sheets"`
	Backup   BackupConfig   `json:"backup"`
	State    StateConfig    `json:"state"`
}

type GeneralConfig struct {
	Timezone    string `json:"timezone"`
	LogLevel    string `json:"logLevel"`
	LogFile     string `json:"logFile,omitempty"`
	TargetsFile string `json:"targetsFile"`
}

type TelegramConfig struct {
	Token           string `json:"token"`
	PollTimeout     int    `json:"pollTimeoutSeconds"`
	PollInterval    int    `json:"pollIntervalSeconds"`
	StartFromLatest bool   `json:"startFromLatestOnFirstRun"`
}

type UpbitConfig struct {
	Enabled     bool   `json:"enabled"`
	AccessKey   string `json:"accessKey,omitempty"`
	SecretKey   string `json:"secretKey,omitempty"`
	Market      string `json:"market"`      // e.g. KRW-BTC
	MarketAsset string `json:"marketAsset"` // base asset filter, e.g. BTC
	SheetSymbol string `json:"sheetSymbol"` // targets-file symbol the fills are recorded under
	BaseURL     string `json:"baseUrl"`
	OrdersPath  string `json:"ordersPath"`
	MaxPages    int    `json:"maxPages"`
	CommandText string `json:"commandText"` // chat command that triggers a sync
}

// SheetsConfig covers the spreadsheet client and the fixed reference cells
// the rule engine reads.
type SheetsConfig struct {
	ServiceAccountFile string         `json:"serviceAccountFile"`
	Worksheet          string         `json:"worksheet,omitempty"` // empty = first worksheet
	RefCells           RefCellsConfig `json:"refCells"`
	RatioLow           float64        `json:"ratioLow"`
	RatioHigh          float64        `json:"ratioHigh"`
}

type RefCellsConfig struct {
	AvgPrice    string `json:"avgPrice"`    // running average
	MarketPrice string `json:"marketPrice"` // current price
	HalfUnit    string `json:"halfUnit"`    // value per half allocation
	LOCAvg      string `json:"locAvg"`
	LOCHigh     string `json:"locHigh"`
	SellLimit   string `json:"sellLimit"`
}

type BackupConfig struct {
	Dir string `json:"dir"`
}

type StateConfig struct {
	DBPath string `json:"dbPath"`
}

// DefaultConfigDir returns the default config directory (~/.fillbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fillbot"
	}
	return filepath.Join(home, ".fillbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.TargetsFile = ExpandPath(cfg.General.TargetsFile)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Sheets.ServiceAccountFile = ExpandPath(cfg.Sheets.ServiceAccountFile)
	cfg.Backup.Dir = ExpandPath(cfg.Backup.Dir)
	cfg.State.DBPath = ExpandPath(cfg.State.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars substitutes ${VAR} references with environment values.
// ${VAR:-default} falls back to default when VAR is unset or empty; a plain
// ${VAR} with no value stays verbatim so a missing secret is visible in the
// loaded config rather than silently blank.
func ExpandEnvVars(input string) string {
	return envRefPattern.ReplaceAllStringFunc(input, func(ref string) string {
		groups := envRefPattern.FindStringSubmatch(ref)
		name, fallback := groups[1], groups[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if fallback != "" {
			return fallback
		}
		return ref
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if _, err := time.LoadLocation(cfg.General.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("general.timezone is not a valid IANA zone: %s", cfg.General.Timezone))
	}
	if cfg.General.TargetsFile == "" {
		errs = append(errs, "general.targetsFile is required")
	}

	if cfg.Telegram.PollTimeout < 1 || cfg.Telegram.PollTimeout > 300 {
		errs = append(errs, "telegram.pollTimeoutSeconds must be between 1 and 300")
	}
	if cfg.Telegram.PollInterval < 0 {
		errs = append(errs, "telegram.pollIntervalSeconds must be >= 0")
	}

	if cfg.Upbit.Enabled {
		if cfg.Upbit.Market == "" {
			errs = append(errs, "upbit.market is required when upbit is enabled")
		}
		if cfg.Upbit.SheetSymbol == "" {
			errs = append(errs, "upbit.sheetSymbol is required when upbit is enabled")
		}
	}
	if cfg.Upbit.MaxPages < 1 || cfg.Upbit.MaxPages > 100 {
		errs = append(errs, "upbit.maxPages must be between 1 and 100")
	}
	if cfg.Upbit.CommandText == "" {
		errs = append(errs, "upbit.commandText must not be empty")
	}

	if cfg.Sheets.RatioLow <= 0 || cfg.Sheets.RatioHigh <= cfg.Sheets.RatioLow {
		errs = append(errs, "sheets.ratioLow/ratioHigh must satisfy 0 < low < high")
	}
	for name, a1 := range map[string]string{
		"sheets.refCells.avgPrice":    cfg.Sheets.RefCells.AvgPrice,
		"sheets.refCells.marketPrice": cfg.Sheets.RefCells.MarketPrice,
		"sheets.refCells.halfUnit":    cfg.Sheets.RefCells.HalfUnit,
		"sheets.refCells.locAvg":      cfg.Sheets.RefCells.LOCAvg,
		"sheets.refCells.locHigh":     cfg.Sheets.RefCells.LOCHigh,
		"sheets.refCells.sellLimit":   cfg.Sheets.RefCells.SellLimit,
	} {
		if !a1Pattern.MatchString(a1) {
			errs = append(errs, fmt.Sprintf("%s must be an A1 address, got %q", name, a1))
		}
	}

	if cfg.Backup.Dir == "" {
		errs = append(errs, "backup.dir is required")
	}
	if cfg.State.DBPath == "" {
		errs = append(errs, "state.dbPath is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

var a1Pattern = regexp.MustCompile(`^[A-Z]{1,3}[1-9][0-9]*$`)

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
