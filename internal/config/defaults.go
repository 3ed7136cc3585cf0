package config

const (
	defaultDownloadDir            = "~/.local/share/ytmusicdl/downloads"
	defaultWorkDir                = "~/.local/share/ytmusicdl/work"
	defaultLogDir                 = "~/.local/share/ytmusicdl/logs"
	defaultLedgerPath             = "~/.local/share/ytmusicdl/ledger.db"
	defaultLogRetentionDays       = 30
	defaultLedgerRetentionDays    = 90
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultManagerBind            = "0.0.0.0:8080"
	defaultMaxClients             = 100
	defaultMaxPacketLength        = 8192
	defaultMaxAudioLength         = 900
	defaultMaxTotalAudioLength    = 7200
	defaultSessionRecoveryTimeout = 120
	defaultDownloadMinutes        = 10
	defaultPingInterval           = 5
	defaultFetchTimeout           = 120
	defaultManagerURL             = "ws://127.0.0.1:8080"
	defaultDownloaderBind         = "0.0.0.0:8081"
	defaultContactURL             = "http://127.0.0.1:8081"
	defaultYtDlpBinary            = "yt-dlp"
	defaultFFmpegBinary           = "ffmpeg"
	defaultProgressIntervalMS     = 500
	defaultProgressMinDelta       = 1.0
	defaultCoverTimeout           = 15
	defaultArtifactTTL            = 600
	defaultReconnectDelay         = 5
	defaultNotifyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
		},
		Manager: Manager{
			Bind:                   defaultManagerBind,
			MaxClients:             defaultMaxClients,
			MaxPacketLength:        defaultMaxPacketLength,
			MaxAudioLength:         defaultMaxAudioLength,
			MaxTotalAudioLength:    defaultMaxTotalAudioLength,
			SessionRecoveryTimeout: defaultSessionRecoveryTimeout,
			DownloadMinutes:        defaultDownloadMinutes,
			PingInterval:           defaultPingInterval,
			FetchTimeout:           defaultFetchTimeout,
		},
		Downloader: Downloader{
			ManagerURL:         defaultManagerURL,
			ContactURL:         defaultContactURL,
			Bind:               defaultDownloaderBind,
			YtDlpBinary:        defaultYtDlpBinary,
			FFmpegBinary:       defaultFFmpegBinary,
			ProgressIntervalMS: defaultProgressIntervalMS,
			ProgressMinDelta:   defaultProgressMinDelta,
			CoverTimeout:       defaultCoverTimeout,
			ArtifactTTL:        defaultArtifactTTL,
			ReconnectDelay:     defaultReconnectDelay,
		},
		Ledger: Ledger{
			Enabled:       true,
			Path:          defaultLedgerPath,
			RetentionDays: defaultLedgerRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout:    defaultNotifyRequestTimeout,
			WorkerLost:        true,
			PackagingFailures: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
