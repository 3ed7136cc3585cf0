package protocol

// Manager to downloader packet ids.
const (
	IDInit          = "init"
	IDDownloadStart = "download-start"
	IDRestart       = "restart"
)

// Downloader to manager packet ids.
const (
	IDDownloadStartConfirm = "download-start-confirm"
	IDDownloadStartReject  = "download-start-reject"
	IDDownloadStatus       = "download-status"
	IDDownloadFinish       = "download-finish"
	IDDownloadFail         = "download-fail"
)

// ManagerPacket is sent by the manager to a downloader.
type ManagerPacket interface {
	Packet
	managerPacket()
}

type Init struct {
	MaxAudioLength int `json:"maxAudioLength"`
}

type DownloadStart struct {
	JobID        string        `json:"job_id"`
	Metadata     VideoMetadata `json:"metadata"`
	Lyrics       string        `json:"lyrics,omitempty"`
	SyncedLyrics string        `json:"synced_lyrics,omitempty"`
	Settings     Settings      `json:"settings"`
}

type Restart struct{}

func (Init) PacketID() string          { return IDInit }
func (DownloadStart) PacketID() string { return IDDownloadStart }
func (Restart) PacketID() string       { return IDRestart }

func (Init) managerPacket()          {}
func (DownloadStart) managerPacket() {}
func (Restart) managerPacket()       {}

var managerPackets = map[string]func() ManagerPacket{
	IDInit:          func() ManagerPacket { return &Init{} },
	IDDownloadStart: func() ManagerPacket { return &DownloadStart{} },
	IDRestart:       func() ManagerPacket { return &Restart{} },
}

// DecodeManager parses a frame received by a downloader.
func DecodeManager(raw []byte) (ManagerPacket, error) {
	return decodeInto(raw, managerPackets)
}

// WorkerPacket is sent by a downloader to the manager.
type WorkerPacket interface {
	Packet
	workerPacket()
}

type DownloadStartConfirm struct {
	JobID string `json:"job_id"`
}

type DownloadStartReject struct {
	JobID string `json:"job_id"`
}

// DownloadStatus carries either a percentage or a status string.
type DownloadStatus struct {
	JobID      string   `json:"job_id"`
	Percentage *float64 `json:"download_percentage,omitempty"`
	Status     string   `json:"status_string,omitempty"`
}

type DownloadFinish struct {
	JobID string `json:"job_id"`
}

type DownloadFail struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (DownloadStartConfirm) PacketID() string { return IDDownloadStartConfirm }
func (DownloadStartReject) PacketID() string  { return IDDownloadStartReject }
func (DownloadStatus) PacketID() string       { return IDDownloadStatus }
func (DownloadFinish) PacketID() string       { return IDDownloadFinish }
func (DownloadFail) PacketID() string         { return IDDownloadFail }

func (DownloadStartConfirm) workerPacket() {}
func (DownloadStartReject) workerPacket()  {}
func (DownloadStatus) workerPacket()       {}
func (DownloadFinish) workerPacket()       {}
func (DownloadFail) workerPacket()         {}

var workerPackets = map[string]func() WorkerPacket{
	IDDownloadStartConfirm: func() WorkerPacket { return &DownloadStartConfirm{} },
	IDDownloadStartReject:  func() WorkerPacket { return &DownloadStartReject{} },
	IDDownloadStatus:       func() WorkerPacket { return &DownloadStatus{} },
	IDDownloadFinish:       func() WorkerPacket { return &DownloadFinish{} },
	IDDownloadFail:         func() WorkerPacket { return &DownloadFail{} },
}

// DecodeWorker parses a frame received from a downloader.
func DecodeWorker(raw []byte) (WorkerPacket, error) {
	return decodeInto(raw, workerPackets)
}
