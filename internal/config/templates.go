package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Flag Scanner Configuration

[scanner]
# Extremum half-window: a bar is a pivot if it is the strict extreme of 2*window+1 bars
window = 3
# Series shorter than this are not scanned
min_bars = 50
# Maximum bars from T1 to T3 and from T3 to T4
max_t3_span = 60
max_t4_span = 30
# Bars before T1 searched for the pole start T0
pole_lookback = 50
# Latest mode: maximum bars between T4 and the last bar
freshness_bars = 3
# Patterns whose T1 and T4 are both this close are duplicates
dedup_distance = 5
# Relative slack when testing bars against the channel lines
channel_buffer = 0.0005
# Concurrent scans when screening many symbols
workers = 4
# Stored bars loaded per symbol and timeframe
lookback = 500

# Fibonacci level tolerance per timeframe (fraction of price)
# [scanner.tolerance]
# "5m" = 0.001
# "1h" = 0.003
# "1d" = 0.005

# Minimum pole height per timeframe (percent of T0)
# [scanner.min_pole_percent]
# "5m" = 1.0
# "1h" = 3.0
# "1d" = 5.0

[store]
# SQLite database path (defaults to flagscan.db next to this file)
path = ""

[watch]
# Cron spec ("*/15 * * * *") or descriptor ("@every 15m", "@hourly")
schedule = "@every 15m"
watchlist = "default"
timeframes = ["1h"]
# Signals below this quality score are not published
min_quality = 0

[redis]
enabled = false
addr = "localhost:6379"
db = 0
channel = "flagscan:signals"
prefix = "flagscan:"
# Lifetime of the last-signal keys
ttl = "24h"

[api]
listen = "127.0.0.1:8080"

[log]
# debug, info, warn, error
level = "info"
file = true
# Defaults to logs/flagscan.log next to this file
file_path = ""

[ui]
color_enabled = true
bell = false
`

const credentialsTemplate = `# Flag Scanner Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[redis]
password = ""
`

func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}

// TemplatePath returns the path of the main config file in configDir.
func TemplatePath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
