package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateManager(); err != nil {
		return err
	}
	if err := c.validateDownloader(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateManagerRole checks the settings only the manager needs.
func (c *Config) ValidateManagerRole() error {
	if c.Manager.WorkerKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/ytmusicdl/config.toml"
		}
		return fmt.Errorf("manager.worker_key is required. Set DOWNLOADER_CREATION_KEY env var or edit %s (create with 'ytmusicdl config init')", defaultPath)
	}
	return nil
}

// ValidateDownloaderRole checks the settings only a downloader needs.
func (c *Config) ValidateDownloaderRole() error {
	if c.Downloader.Key == "" {
		return errors.New("downloader.key is required. Set DOWNLOADER_CREATION_KEY env var or edit the config file")
	}
	if strings.ContainsAny(c.Downloader.Key, ", ") {
		return errors.New("downloader.key must not contain commas or spaces")
	}
	if strings.ContainsAny(c.Downloader.ContactURL, ", ") {
		return errors.New("downloader.contact_url must not contain commas or spaces")
	}
	return nil
}

func (c *Config) validateManager() error {
	m := c.Manager
	if m.MaxClients <= 0 {
		return errors.New("manager.max_clients must be positive")
	}
	if m.MaxPacketLength < 256 {
		return errors.New("manager.max_packet_length must be at least 256")
	}
	if m.MaxAudioLength <= 0 {
		return errors.New("manager.max_audio_length must be positive")
	}
	if m.MaxTotalAudioLength < m.MaxAudioLength {
		return errors.New("manager.max_total_audio_length must be at least manager.max_audio_length")
	}
	if m.SessionRecoveryTimeout < 0 {
		return errors.New("manager.session_recovery_timeout must be non-negative")
	}
	if m.DownloadMinutes < 0 {
		return errors.New("manager.download_minutes must be non-negative")
	}
	if m.PingInterval <= 0 {
		return errors.New("manager.ping_interval must be positive")
	}
	if m.FetchTimeout <= 0 {
		return errors.New("manager.fetch_timeout must be positive")
	}
	for _, raw := range m.WakeURLs {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("manager.wake_urls: %w", err)
		}
	}
	return nil
}

func (c *Config) validateDownloader() error {
	d := c.Downloader
	parsed, err := url.Parse(d.ManagerURL)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") || parsed.Host == "" {
		return errors.New("downloader.manager_url must be a ws:// or wss:// url")
	}
	if err := validateHTTPURL(d.ContactURL); err != nil {
		return fmt.Errorf("downloader.contact_url: %w", err)
	}
	if d.ProgressIntervalMS < 0 {
		return errors.New("downloader.progress_interval_ms must be non-negative")
	}
	if d.ProgressMinDelta < 0 || d.ProgressMinDelta > 100 {
		return errors.New("downloader.progress_min_delta must be between 0 and 100")
	}
	if d.CoverTimeout <= 0 {
		return errors.New("downloader.cover_timeout must be positive")
	}
	if d.ArtifactTTL <= 0 {
		return errors.New("downloader.artifact_ttl must be positive")
	}
	if d.ReconnectDelay <= 0 {
		return errors.New("downloader.reconnect_delay must be positive")
	}
	if d.Cookies != "" {
		if _, err := base64.StdEncoding.DecodeString(d.Cookies); err != nil {
			return errors.New("downloader.cookies must be base64 encoded")
		}
	}
	return nil
}

func (c *Config) validateLedger() error {
	if c.Ledger.Enabled && c.Ledger.RetentionDays < 0 {
		return errors.New("ledger.retention_days must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
