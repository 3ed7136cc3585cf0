package broker

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
	"ytmusicdl/internal/scheduler"
	"ytmusicdl/internal/validation"
)

const maxCloseReason = 123

func (b *Broker) serveClient(w http.ResponseWriter, r *http.Request, offer protocolOffer) {
	if !b.life.CanAdmit(offer.ticket) {
		writeError(w, http.StatusServiceUnavailable, "maximum number of clients reached")
		return
	}
	ws, err := b.upgrader.Upgrade(w, r, offer.responseHeader())
	if err != nil {
		b.logRequestError(r, "client upgrade failed", err)
		return
	}

	conn := newConn(ws, b.logger, b.cfg.PingInterval(), true)
	go conn.writePump()

	sessionID, _, err := b.life.Admit(offer.ticket, conn)
	if err != nil {
		conn.Close(protocol.CloseDefault, err.Error())
		conn.readLoop(0, func(int, []byte) {})
		return
	}

	maxLength := b.cfg.Manager.MaxPacketLength
	code := conn.readLoop(int64(maxLength), func(messageType int, data []byte) {
		if messageType != websocket.TextMessage {
			conn.Close(protocol.CloseInvalidData, "Only text frames are accepted")
			return
		}
		if len(data) > maxLength {
			conn.Close(protocol.CloseMessageTooLarge, "Packet too large")
			return
		}
		packet, err := protocol.DecodeClient(data)
		if err != nil {
			b.logger.Debug("invalid client packet",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
			)
			conn.Close(protocol.CloseInvalidPacketData, closeReason(err.Error()))
			return
		}
		b.handleClientPacket(sessionID, conn, packet)
	})
	b.life.Closed(sessionID, conn, code)
}

func (b *Broker) handleClientPacket(sessionID string, conn registry.Conn, packet protocol.ClientPacket) {
	switch p := packet.(type) {
	case *protocol.SettingsUpdate:
		b.updateSettings(sessionID, conn, p)
	case *protocol.JobCreate:
		b.createJob(sessionID, conn, p)
	case *protocol.QueueRemove:
		if b.sched.Cancel(sessionID, p.JobID) {
			conn.Send(protocol.QueueRemoveConfirm{JobID: p.JobID})
		}
	case *protocol.PackageRequest:
		b.pack.Package(sessionID, false)
	case *protocol.PingDownloaders:
		b.wakeDownloaders()
	case *protocol.RestartDownloadersRequest:
		b.restartDownloaders(sessionID, conn, p.Auth)
	}
}

func (b *Broker) updateSettings(sessionID string, conn registry.Conn, p *protocol.SettingsUpdate) {
	if len(p.Settings) == 0 || string(p.Settings) == "null" {
		return
	}
	settings, result := validation.DecodeSettings(p.Settings)
	if result.Failed() {
		conn.Send(protocol.SettingsRejection{Violations: result.Violations})
		return
	}
	b.reg.Update(func(tx *registry.Tx) {
		if session := tx.Session(sessionID); session != nil {
			session.Settings = settings
		}
	})
}

func (b *Broker) createJob(sessionID string, conn registry.Conn, p *protocol.JobCreate) {
	req, result := validation.DecodeJob(p)
	if result.Failed() {
		b.rejectJob(sessionID, conn, validation.VideoIDOf(p.Raw), result.Violations)
		return
	}
	if _, err := b.sched.Submit(sessionID, req); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateVideo) {
			b.rejectJob(sessionID, conn, req.VideoID, []string{scheduler.ReasonDuplicate})
			return
		}
		b.logger.Debug("job submit failed",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Error(err),
		)
	}
}

func (b *Broker) rejectJob(sessionID string, conn registry.Conn, videoID string, violations []string) {
	conn.Send(protocol.JobRejection{VideoID: videoID, Violations: violations})
	detail := ""
	if len(violations) > 0 {
		detail = violations[0]
	}
	b.sink.Record(ledger.Event{
		Kind:      ledger.JobRejected,
		SessionID: sessionID,
		VideoID:   videoID,
		Detail:    detail,
		CreatedAt: b.now(),
	})
}

// restartDownloaders answers every request; only an authorised request
// outside the rate limit actually restarts the workers.
func (b *Broker) restartDownloaders(sessionID string, conn registry.Conn, auth string) {
	allowed := b.restartLimiter.Allow()
	valid := secretsEqual(auth, b.cfg.Manager.AdminToken)
	restarting := allowed && valid
	conn.Send(protocol.RestartDownloadersResponse{Restarting: restarting})
	if !restarting {
		b.logger.Debug("restart request refused",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Bool("rate_limited", !allowed),
			logging.Bool("authorised", valid),
		)
		return
	}

	workers := 0
	b.reg.View(func(tx *registry.Tx) {
		for _, worker := range tx.Workers() {
			worker.Send(protocol.Restart{})
			workers++
		}
	})
	b.logger.Info("restarting downloaders",
		logging.String(logging.FieldEventType, "downloaders_restart"),
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("workers", workers),
	)
}

func closeReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	return strings.ToValidUTF8(reason[:maxCloseReason], "")
}
