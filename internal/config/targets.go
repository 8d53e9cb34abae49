package config

import (
	"fmt"
	"os"
	"strings"

	"fillbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// targetsFile is the on-disk schema of targets.yaml.
type targetsFile struct {
	Targets map[string]targetEntry `yaml:"targets"`
}

type targetEntry struct {
	SpreadsheetID string `yaml:"spreadsheetId"`
	Worksheet     string `yaml:"worksheet"`
	Currency      string `yaml:"currency"`
}

// LoadTargets reads the symbol→spreadsheet map. Symbols are normalized to
// upper case; currency falls back per symbol family (BTC→KRW, else USD) as
// the single-asset configuration expects.
func LoadTargets(path string) (map[string]domain.SheetTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read targets file %s: %w", path, err)
	}

	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("cannot parse targets file %s: %w", path, err)
	}
	if len(f.Targets) == 0 {
		return nil, fmt.Errorf("targets file %s defines no targets", path)
	}

	out := make(map[string]domain.SheetTarget, len(f.Targets))
	for sym, e := range f.Targets {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || e.SpreadsheetID == "" {
			return nil, fmt.Errorf("targets file %s: entry %q needs a symbol and spreadsheetId", path, sym)
		}
		ccy := strings.ToUpper(strings.TrimSpace(e.Currency))
		if ccy == "" {
			ccy = DefaultCurrency(sym)
		}
		if ccy != "USD" && ccy != "KRW" {
			return nil, fmt.Errorf("targets file %s: %s has unsupported currency %q", path, sym, e.Currency)
		}
		out[sym] = domain.SheetTarget{
			Symbol:        sym,
			SpreadsheetID: e.SpreadsheetID,
			Worksheet:     e.Worksheet,
			Currency:      ccy,
		}
	}
	return out, nil
}

// DefaultCurrency maps a symbol to its currency when the targets entry
// leaves it blank. The exchange-tracked family settles in KRW.
func DefaultCurrency(symbol string) string {
	if strings.ToUpper(symbol) == "BTC" {
		return "KRW"
	}
	return "USD"
}

// SaveTargetsSkeleton writes a commented starter targets file (used by init).
func SaveTargetsSkeleton(path string) error {
	const skeleton = `# fillbot targets: symbol -> spreadsheet
targets:
  TQQQ:
    spreadsheetId: "<spreadsheet id>"
    currency: USD
  BTC:
    spreadsheetId: "<spreadsheet id>"
    currency: KRW
`
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("targets file already exists: %s", path)
	}
	return os.WriteFile(path, []byte(skeleton), 0o644)
}
