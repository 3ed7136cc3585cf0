package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by both roles.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
}

// Manager contains the broker's limits and network settings.
type Manager struct {
	Bind                        string   `toml:"bind"`
	MaxClients                  int      `toml:"max_clients"`
	MaxPacketLength             int      `toml:"max_packet_length"`
	MaxAudioLength              int      `toml:"max_audio_length"`
	MaxTotalAudioLength         int      `toml:"max_total_audio_length"`
	AllowSameVideoMultipleTimes bool     `toml:"allow_same_video_multiple_times"`
	SessionRecoveryTimeout      int      `toml:"session_recovery_timeout"`
	DownloadMinutes             int      `toml:"download_minutes"`
	PingInterval                int      `toml:"ping_interval"`
	FetchTimeout                int      `toml:"fetch_timeout"`
	WorkerKey                   string   `toml:"worker_key"`
	AdminToken                  string   `toml:"admin_token"`
	WakeURLs                    []string `toml:"wake_urls"`
}

// Downloader contains settings for a worker process.
type Downloader struct {
	ManagerURL         string  `toml:"manager_url"`
	ContactURL         string  `toml:"contact_url"`
	Bind               string  `toml:"bind"`
	Key                string  `toml:"key"`
	Cookies            string  `toml:"cookies"`
	YtDlpBinary        string  `toml:"ytdlp_binary"`
	FFmpegBinary       string  `toml:"ffmpeg_binary"`
	ProgressIntervalMS int     `toml:"progress_interval_ms"`
	ProgressMinDelta   float64 `toml:"progress_min_delta"`
	CoverTimeout       int     `toml:"cover_timeout"`
	ArtifactTTL        int     `toml:"artifact_ttl"`
	ReconnectDelay     int     `toml:"reconnect_delay"`
}

// Ledger contains configuration for the job history database.
type Ledger struct {
	Enabled       bool   `toml:"enabled"`
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	WorkerLost        bool   `toml:"worker_lost"`
	PackagingFailures bool   `toml:"packaging_failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for ytmusicdl.
//
// Configuration sections by subsystem:
//   - Paths: output, scratch and log directories
//   - Manager: broker limits, recovery windows and credentials
//   - Downloader: worker connection and external tool settings
//   - Ledger: sqlite job history
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Manager       Manager       `toml:"manager"`
	Downloader    Downloader    `toml:"downloader"`
	Ledger        Ledger        `toml:"ledger"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ytmusicdl/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ytmusicdl.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories both roles write to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Ledger.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.Ledger.Path), 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return nil
}

// SessionRecoveryWindow is how long a disconnected session stays claimable.
func (c *Config) SessionRecoveryWindow() time.Duration {
	return time.Duration(c.Manager.SessionRecoveryTimeout) * time.Second
}

// RetentionWindow is how long a finished session's archive stays downloadable.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Manager.DownloadMinutes) * time.Minute
}

// PingInterval is the keepalive cadence for client connections.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Manager.PingInterval) * time.Second
}

// FetchTimeout bounds a single artifact pull from a worker.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Manager.FetchTimeout) * time.Second
}

// ProgressInterval is the minimum spacing between progress reports.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Downloader.ProgressIntervalMS) * time.Millisecond
}

// CoverTimeout bounds the cover image request.
func (c *Config) CoverTimeout() time.Duration {
	return time.Duration(c.Downloader.CoverTimeout) * time.Second
}

// ArtifactTTL is how long an unclaimed artifact is kept.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Downloader.ArtifactTTL) * time.Second
}

// ReconnectDelay is the pause between manager reconnect attempts.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Downloader.ReconnectDelay) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
