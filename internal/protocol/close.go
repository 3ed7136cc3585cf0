package protocol

// CloseCode is a websocket close status sent by the manager. Clients branch on
// it to decide whether a session may be recovered.
type CloseCode int

const (
	// CloseDefault is an administrative close, also used after packaging.
	CloseDefault CloseCode = 4000

	// CloseDownloadFinished is sent by a client that fetched its archive.
	CloseDownloadFinished CloseCode = 4001

	CloseMessageTooLarge CloseCode = 4002

	// CloseInvalidData rejects frames that are not text.
	CloseInvalidData CloseCode = 4003

	CloseInvalidPacketData CloseCode = 4004

	ClosePackagingFailure CloseCode = 4005
)

func (c CloseCode) String() string {
	switch c {
	case CloseDefault:
		return "default"
	case CloseDownloadFinished:
		return "download_finished"
	case CloseMessageTooLarge:
		return "message_too_large"
	case CloseInvalidData:
		return "invalid_data"
	case CloseInvalidPacketData:
		return "invalid_packet_data"
	case ClosePackagingFailure:
		return "packaging_failure"
	default:
		return "unknown"
	}
}
