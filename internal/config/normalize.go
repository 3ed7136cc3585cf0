package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeManager()
	c.normalizeDownloader()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeManager() {
	c.Manager.Bind = strings.TrimSpace(c.Manager.Bind)
	if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
		c.Manager.Bind = "0.0.0.0:" + strings.TrimSpace(value)
	}
	if c.Manager.Bind == "" {
		c.Manager.Bind = defaultManagerBind
	}
	if c.Manager.WorkerKey == "" {
		if value, ok := os.LookupEnv("DOWNLOADER_CREATION_KEY"); ok {
			c.Manager.WorkerKey = value
		}
	}
	c.Manager.WorkerKey = strings.TrimSpace(c.Manager.WorkerKey)
	if c.Manager.AdminToken == "" {
		if value, ok := os.LookupEnv("AUTH"); ok {
			c.Manager.AdminToken = value
		}
	}
	c.Manager.AdminToken = strings.TrimSpace(c.Manager.AdminToken)

	urls := c.Manager.WakeURLs[:0]
	for _, raw := range c.Manager.WakeURLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	c.Manager.WakeURLs = urls
}

func (c *Config) normalizeDownloader() {
	if value, ok := os.LookupEnv("MANAGER_URL"); ok && strings.TrimSpace(value) != "" && c.Downloader.ManagerURL == defaultManagerURL {
		c.Downloader.ManagerURL = value
	}
	if value, ok := os.LookupEnv("CONTACT_URL"); ok && strings.TrimSpace(value) != "" && c.Downloader.ContactURL == defaultContactURL {
		c.Downloader.ContactURL = value
	}
	c.Downloader.ManagerURL = strings.TrimRight(strings.TrimSpace(c.Downloader.ManagerURL), "/")
	c.Downloader.ContactURL = strings.TrimRight(strings.TrimSpace(c.Downloader.ContactURL), "/")

	if c.Downloader.Key == "" {
		if value, ok := os.LookupEnv("DOWNLOADER_CREATION_KEY"); ok {
			c.Downloader.Key = value
		}
	}
	c.Downloader.Key = strings.TrimSpace(c.Downloader.Key)
	if c.Downloader.Cookies == "" {
		if value, ok := os.LookupEnv("COOKIES"); ok {
			c.Downloader.Cookies = value
		}
	}
	c.Downloader.Cookies = strings.TrimSpace(c.Downloader.Cookies)

	c.Downloader.Bind = strings.TrimSpace(c.Downloader.Bind)
	if c.Downloader.Bind == "" {
		c.Downloader.Bind = defaultDownloaderBind
	}
	c.Downloader.YtDlpBinary = strings.TrimSpace(c.Downloader.YtDlpBinary)
	if c.Downloader.YtDlpBinary == "" {
		c.Downloader.YtDlpBinary = defaultYtDlpBinary
	}
	c.Downloader.FFmpegBinary = strings.TrimSpace(c.Downloader.FFmpegBinary)
	if c.Downloader.FFmpegBinary == "" {
		c.Downloader.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeLedger() error {
	if !c.Ledger.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = defaultLedgerPath
	}
	var err error
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
