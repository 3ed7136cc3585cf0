package api

import "ytmusicdl/internal/ledger"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionSummary describes one client session.
type SessionSummary struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	Packaging      string `json:"packaging"`
	Jobs           int    `json:"jobs"`
	UnfinishedJobs int    `json:"unfinishedJobs"`
	Connected      bool   `json:"connected"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// WorkerSummary describes one connected downloader.
type WorkerSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ContactURL      string `json:"contactUrl"`
	CurrentDownload string `json:"currentDownload,omitempty"`
	Rejecting       bool   `json:"rejecting"`
	ConnectedAt     string `json:"connectedAt,omitempty"`
}

// JobSummary describes one job known to the manager.
type JobSummary struct {
	ID              string `json:"id"`
	SessionID       string `json:"sessionId"`
	VideoID         string `json:"videoId"`
	Title           string `json:"title,omitempty"`
	AssignedWorker  string `json:"assignedWorker,omitempty"`
	PendingDownload bool   `json:"pendingDownload"`
	QueuePosition   *int   `json:"queuePosition,omitempty"`
	Paused          bool   `json:"paused"`
	Finished        bool   `json:"finished"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// StatusCounts aggregates the snapshot.
type StatusCounts struct {
	Sessions    int `json:"sessions"`
	Workers     int `json:"workers"`
	IdleWorkers int `json:"idleWorkers"`
	Jobs        int `json:"jobs"`
	Queued      int `json:"queued"`
}

// Status is the payload of GET /api/status.
type Status struct {
	Sessions []SessionSummary `json:"sessions"`
	Workers  []WorkerSummary  `json:"workers"`
	Jobs     []JobSummary     `json:"jobs"`
	Counts   StatusCounts     `json:"counts"`
}

// HistoryResponse is the payload of GET /api/history.
type HistoryResponse struct {
	Events []ledger.Event `json:"events"`
}

// ErrorResponse is returned by every failing admin endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
