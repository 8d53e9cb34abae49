package config

import "path/filepath"

func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			Timezone:    "Asia/Seoul",
			LogLevel:    "info",
			TargetsFile: filepath.Join(dir, "targets.yaml"),
		},
		Telegram: TelegramConfig{
			PollTimeout:     30,
			PollInterval:    2,
			StartFromLatest: true,
		},
		Upbit: UpbitConfig{
			Enabled:     false,
			Market:      "KRW-BTC",
			MarketAsset: "BTC",
			SheetSymbol: "BTC",
			BaseURL:     "https://api.upbit.com",
			OrdersPath:  "/v1/orders/closed",
			MaxPages:    30,
			CommandText: "업비트 기록 수행",
		},
		Sheets: SheetsConfig{
			RefCells: RefCellsConfig{
				AvgPrice:    "R6",
				MarketPrice: "B2",
				HalfUnit:    "B3",
				LOCAvg:      "R9",
				LOCHigh:     "R10",
				SellLimit:   "R11",
			},
			RatioLow:  0.8,
			RatioHigh: 1.2,
		},
		Backup: BackupConfig{
			Dir: filepath.Join(dir, "backups"),
		},
		State: StateConfig{
			DBPath: filepath.Join(dir, "state.db"),
		},
	}
}
