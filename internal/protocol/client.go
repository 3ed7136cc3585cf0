package protocol

import "encoding/json"

// Client to manager packet ids.
const (
	IDSettingsUpdate            = "settings-update"
	IDJobCreate                 = "job-create"
	IDQueueRemove               = "queue-remove"
	IDPackageRequest            = "package-request"
	IDPingDownloaders           = "ping-downloaders"
	IDRestartDownloadersRequest = "restart-downloaders-request"
)

// Manager to client packet ids.
const (
	IDWelcome                    = "welcome"
	IDPing                       = "ping"
	IDDownloaderList             = "downloader-list"
	IDRecoveredJobList           = "recovered-job-list"
	IDJobAccept                  = "job-accept"
	IDJobRejection               = "job-rejection"
	IDSettingsRejection          = "settings-rejection"
	IDQueueUpdate                = "queue-update"
	IDQueueRemoveConfirm         = "queue-remove-confirm"
	IDJobDownloadPending         = "job-download-pending"
	IDJobDownloadStart           = "job-download-start"
	IDJobDownloadStatus          = "job-download-status"
	IDJobDownloadFinish          = "job-download-finish"
	IDJobDownloadFail            = "job-download-fail"
	IDPackageStart               = "package-start"
	IDPackageEnd                 = "package-end"
	IDPackageFail                = "package-fail"
	IDRestartDownloadersResponse = "restart-downloaders-response"
)

// ClientPacket is sent by a client to the manager.
type ClientPacket interface {
	Packet
	clientPacket()
}

// SettingsUpdate carries the raw settings object so it can be schema checked.
type SettingsUpdate struct {
	Settings json.RawMessage `json:"settings"`
}

// JobCreate carries the raw job request so it can be schema checked before it
// is decoded into a JobRequest.
type JobCreate struct {
	Raw json.RawMessage
}

func (j *JobCreate) UnmarshalJSON(data []byte) error {
	j.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (j JobCreate) MarshalJSON() ([]byte, error) {
	if len(j.Raw) == 0 {
		return []byte("{}"), nil
	}
	return j.Raw, nil
}

// Request decodes the payload; call only after validation passed.
func (j JobCreate) Request() (JobRequest, error) {
	var req JobRequest
	err := json.Unmarshal(j.Raw, &req)
	return req, err
}

type QueueRemove struct {
	JobID string `json:"job_id"`
}

type PackageRequest struct{}

type PingDownloaders struct{}

type RestartDownloadersRequest struct {
	Auth string `json:"auth"`
}

func (SettingsUpdate) PacketID() string            { return IDSettingsUpdate }
func (JobCreate) PacketID() string                 { return IDJobCreate }
func (QueueRemove) PacketID() string               { return IDQueueRemove }
func (PackageRequest) PacketID() string            { return IDPackageRequest }
func (PingDownloaders) PacketID() string           { return IDPingDownloaders }
func (RestartDownloadersRequest) PacketID() string { return IDRestartDownloadersRequest }

func (*SettingsUpdate) clientPacket()            {}
func (*JobCreate) clientPacket()                 {}
func (*QueueRemove) clientPacket()               {}
func (*PackageRequest) clientPacket()            {}
func (*PingDownloaders) clientPacket()           {}
func (*RestartDownloadersRequest) clientPacket() {}

var clientPackets = map[string]func() ClientPacket{
	IDSettingsUpdate:            func() ClientPacket { return &SettingsUpdate{} },
	IDJobCreate:                 func() ClientPacket { return &JobCreate{} },
	IDQueueRemove:               func() ClientPacket { return &QueueRemove{} },
	IDPackageRequest:            func() ClientPacket { return &PackageRequest{} },
	IDPingDownloaders:           func() ClientPacket { return &PingDownloaders{} },
	IDRestartDownloadersRequest: func() ClientPacket { return &RestartDownloadersRequest{} },
}

// DecodeClient parses a frame received from a client.
func DecodeClient(raw []byte) (ClientPacket, error) {
	return decodeInto(raw, clientPackets)
}

// ServerPacket is sent by the manager to a client.
type ServerPacket interface {
	Packet
	serverPacket()
}

type Welcome struct {
	SessionID string       `json:"session_id"`
	Config    ServerConfig `json:"config"`
}

type Ping struct{}

type DownloaderList struct {
	Downloaders []DownloaderInfo `json:"downloaders"`
}

type RecoveredJobList struct {
	Jobs []JobView `json:"jobs"`
}

type JobAccept struct {
	VideoID       string `json:"video_id"`
	JobID         string `json:"job_id"`
	QueuePosition int    `json:"queue_position"`
}

type JobRejection struct {
	VideoID    string   `json:"video_id"`
	Violations []string `json:"violations"`
}

type SettingsRejection struct {
	Violations []string `json:"violations"`
}

// QueueUpdate maps job id to queue position for one session's jobs.
type QueueUpdate map[string]int

type QueueRemoveConfirm struct {
	JobID string `json:"job_id"`
}

type JobDownloadPending struct {
	JobID        string `json:"job_id"`
	DownloaderID string `json:"downloader_id"`
}

type JobDownloadStart struct {
	JobID string `json:"job_id"`
}

// JobDownloadStatus carries either a percentage or a status string.
type JobDownloadStatus struct {
	JobID      string   `json:"job_id"`
	Percentage *float64 `json:"download_percentage,omitempty"`
	Status     string   `json:"status_string,omitempty"`
}

type JobDownloadFinish struct {
	JobID string `json:"job_id"`
}

type JobDownloadFail struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

type PackageStart struct{}

type PackageEnd struct{}

type PackageFail struct {
	Reason string `json:"reason,omitempty"`
}

type RestartDownloadersResponse struct {
	Restarting bool `json:"restarting"`
}

func (Welcome) PacketID() string                    { return IDWelcome }
func (Ping) PacketID() string                       { return IDPing }
func (DownloaderList) PacketID() string             { return IDDownloaderList }
func (RecoveredJobList) PacketID() string           { return IDRecoveredJobList }
func (JobAccept) PacketID() string                  { return IDJobAccept }
func (JobRejection) PacketID() string               { return IDJobRejection }
func (SettingsRejection) PacketID() string          { return IDSettingsRejection }
func (QueueUpdate) PacketID() string                { return IDQueueUpdate }
func (QueueRemoveConfirm) PacketID() string         { return IDQueueRemoveConfirm }
func (JobDownloadPending) PacketID() string         { return IDJobDownloadPending }
func (JobDownloadStart) PacketID() string           { return IDJobDownloadStart }
func (JobDownloadStatus) PacketID() string          { return IDJobDownloadStatus }
func (JobDownloadFinish) PacketID() string          { return IDJobDownloadFinish }
func (JobDownloadFail) PacketID() string            { return IDJobDownloadFail }
func (PackageStart) PacketID() string               { return IDPackageStart }
func (PackageEnd) PacketID() string                 { return IDPackageEnd }
func (PackageFail) PacketID() string                { return IDPackageFail }
func (RestartDownloadersResponse) PacketID() string { return IDRestartDownloadersResponse }

func (Welcome) serverPacket()                    {}
func (Ping) serverPacket()                       {}
func (DownloaderList) serverPacket()             {}
func (RecoveredJobList) serverPacket()           {}
func (JobAccept) serverPacket()                  {}
func (JobRejection) serverPacket()               {}
func (SettingsRejection) serverPacket()          {}
func (QueueUpdate) serverPacket()                {}
func (QueueRemoveConfirm) serverPacket()         {}
func (JobDownloadPending) serverPacket()         {}
func (JobDownloadStart) serverPacket()           {}
func (JobDownloadStatus) serverPacket()          {}
func (JobDownloadFinish) serverPacket()          {}
func (JobDownloadFail) serverPacket()            {}
func (PackageStart) serverPacket()               {}
func (PackageEnd) serverPacket()                 {}
func (PackageFail) serverPacket()                {}
func (RestartDownloadersResponse) serverPacket() {}

var serverPackets = map[string]func() ServerPacket{
	IDWelcome:                    func() ServerPacket { return &Welcome{} },
	IDPing:                       func() ServerPacket { return &Ping{} },
	IDDownloaderList:             func() ServerPacket { return &DownloaderList{} },
	IDRecoveredJobList:           func() ServerPacket { return &RecoveredJobList{} },
	IDJobAccept:                  func() ServerPacket { return &JobAccept{} },
	IDJobRejection:               func() ServerPacket { return &JobRejection{} },
	IDSettingsRejection:          func() ServerPacket { return &SettingsRejection{} },
	IDQueueUpdate:                func() ServerPacket { return &QueueUpdate{} },
	IDQueueRemoveConfirm:         func() ServerPacket { return &QueueRemoveConfirm{} },
	IDJobDownloadPending:         func() ServerPacket { return &JobDownloadPending{} },
	IDJobDownloadStart:           func() ServerPacket { return &JobDownloadStart{} },
	IDJobDownloadStatus:          func() ServerPacket { return &JobDownloadStatus{} },
	IDJobDownloadFinish:          func() ServerPacket { return &JobDownloadFinish{} },
	IDJobDownloadFail:            func() ServerPacket { return &JobDownloadFail{} },
	IDPackageStart:               func() ServerPacket { return &PackageStart{} },
	IDPackageEnd:                 func() ServerPacket { return &PackageEnd{} },
	IDPackageFail:                func() ServerPacket { return &PackageFail{} },
	IDRestartDownloadersResponse: func() ServerPacket { return &RestartDownloadersResponse{} },
}

// DecodeServer parses a frame received from the manager on a client
// connection. The returned packets are pointers to the concrete types.
func DecodeServer(raw []byte) (ServerPacket, error) {
	return decodeInto(raw, serverPackets)
}
