package protocol

import "time"

// Settings are the per-session download preferences. The version and
// shouldAttemptSessionRecovery keys are client bookkeeping and not kept.
type Settings struct {
	UseAlbumSubfolders   bool     `json:"useAlbumSubfolders"`
	AudioBitrate         int      `json:"audioBitrate"`
	UseSponsorblock      bool     `json:"useSponsorblock"`
	SponsorblockSegments []string `json:"sponsorblockSegments"`
	UseMaxResCovers      bool     `json:"useMaxResCovers"`
	AutoPackageOnFinish  bool     `json:"autoPackageOnFinish"`
	SaveLyrics           bool     `json:"saveLyrics"`
}

// DefaultSettings is what a fresh session uses until the client sends its own.
func DefaultSettings() Settings {
	return Settings{
		UseAlbumSubfolders:   true,
		AudioBitrate:         0,
		UseSponsorblock:      true,
		SponsorblockSegments: []string{"music_offtopic"},
		UseMaxResCovers:      true,
		AutoPackageOnFinish:  false,
		SaveLyrics:           true,
	}
}

// VideoMetadata identifies the track and the tags written into the file.
type VideoMetadata struct {
	VideoID string   `json:"video_id"`
	Title   string   `json:"title,omitempty"`
	Artists []string `json:"artists"`
	Album   string   `json:"album,omitempty"`
	Cover   string   `json:"cover,omitempty"`
	Track   int      `json:"track,omitempty"`
}

// JobRequest is the payload of a job-create packet.
type JobRequest struct {
	VideoMetadata
	ArtistFolder bool   `json:"artist_folder"`
	AlbumFolder  bool   `json:"album_folder"`
	Lyrics       string `json:"lyrics,omitempty"`
	SyncedLyrics string `json:"synced_lyrics,omitempty"`
}

// JobView is the client-facing snapshot of a job, used for recovery.
type JobView struct {
	JobID              string        `json:"job_id"`
	SessionID          string        `json:"session_id"`
	Metadata           VideoMetadata `json:"metadata"`
	AssignedDownloader *string       `json:"assigned_downloader"`
	PendingDownload    bool          `json:"pending_download"`
	QueuePosition      *int          `json:"queue_position"`
	Paused             bool          `json:"paused"`
	Finished           bool          `json:"finished"`
	ArtistFolder       bool          `json:"artist_folder"`
	AlbumFolder        bool          `json:"album_folder"`
	Lyrics             string        `json:"lyrics,omitempty"`
	SyncedLyrics       string        `json:"synced_lyrics,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// ServerConfig exposes the limits a client needs to shape its requests.
type ServerConfig struct {
	SessionRecoveryTimeout      int  `json:"sessionRecoveryTimeout"`
	MaxClients                  int  `json:"maxClients"`
	MaxPacketLength             int  `json:"maxPacketLength"`
	MaxAudioLength              int  `json:"maxAudioLength"`
	MaxTotalAudioLength         int  `json:"maxTotalAudioLength"`
	AllowSameVideoMultipleTimes bool `json:"allowSameVideoMultipleTimes"`
	DownloadMinutes             int  `json:"downloadMinutes"`
}

// DownloaderInfo names one connected downloader.
type DownloaderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
