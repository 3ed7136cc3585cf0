package broker

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/notifications"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
)

func (b *Broker) serveWorker(w http.ResponseWriter, r *http.Request, offer protocolOffer) {
	if !secretsEqual(offer.key, b.cfg.Manager.WorkerKey) {
		logging.WarnWithContext(b.logger, "downloader presented an invalid key", "worker_auth_failed",
			logging.String(logging.FieldRemoteAddr, r.RemoteAddr),
			logging.String(logging.FieldImpact, "connection refused"),
			logging.String(logging.FieldErrorHint, "check DOWNLOADER_CREATION_KEY on both hosts"),
		)
		writeError(w, http.StatusUnauthorized, "invalid downloader key")
		return
	}
	contact := strings.TrimRight(offer.contactURL, "/")
	if parsed, err := url.Parse(contact); contact == "" || err != nil || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "missing or invalid contact url")
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, offer.responseHeader())
	if err != nil {
		b.logRequestError(r, "downloader upgrade failed", err)
		return
	}
	conn := newConn(ws, b.logger, b.cfg.PingInterval(), false)
	go conn.writePump()

	worker := &registry.Worker{
		ID:          uuid.NewString(),
		ContactURL:  contact,
		Conn:        conn,
		ConnectedAt: b.now(),
	}
	conn.Send(protocol.Init{MaxAudioLength: b.cfg.Manager.MaxAudioLength})
	b.sched.AddWorker(worker)
	b.logger.Info("downloader connected",
		logging.String(logging.FieldEventType, "worker_connected"),
		logging.String(logging.FieldWorkerID, worker.ID),
		logging.String("contact_url", contact),
	)

	code := conn.readLoop(workerReadLimit, func(messageType int, data []byte) {
		if messageType != websocket.TextMessage {
			b.logger.Debug("ignoring binary frame from downloader",
				logging.String(logging.FieldWorkerID, worker.ID),
				logging.Int("bytes", len(data)),
			)
			return
		}
		if len(data) > workerReadLimit {
			logging.WarnWithContext(b.logger, "oversized downloader packet", "worker_packet_too_large",
				logging.String(logging.FieldWorkerID, worker.ID),
				logging.String(logging.FieldImpact, "packet ignored"),
			)
			return
		}
		packet, err := protocol.DecodeWorker(data)
		if err != nil {
			logging.WarnWithContext(b.logger, "invalid downloader packet", "worker_packet_invalid",
				logging.String(logging.FieldWorkerID, worker.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "packet ignored"),
				logging.String(logging.FieldErrorHint, "downloader and manager versions may differ"),
			)
			return
		}
		b.handleWorkerPacket(worker.ID, packet)
	})

	lost := b.sched.WorkerDisconnected(worker.ID)
	b.logger.Info("downloader disconnected",
		logging.String(logging.FieldEventType, "worker_disconnected"),
		logging.String(logging.FieldWorkerID, worker.ID),
		logging.Int("close_code", int(code)),
	)
	if lost != nil {
		title := lost.Request.Title
		if title == "" {
			title = lost.Request.VideoID
		}
		b.spawn(func(ctx context.Context) {
			if err := b.notifier.Publish(ctx, notifications.EventWorkerLost, notifications.Payload{
				"worker": worker.Name(),
				"title":  title,
			}); err != nil {
				logging.WarnWithContext(b.logger, "worker lost notification failed", "notification_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "operator was not alerted"),
				)
			}
		})
	}
}

func (b *Broker) handleWorkerPacket(workerID string, packet protocol.WorkerPacket) {
	switch p := packet.(type) {
	case *protocol.DownloadStartConfirm:
		b.sched.Confirm(workerID, p.JobID)
	case *protocol.DownloadStartReject:
		b.sched.Reject(workerID, p.JobID)
	case *protocol.DownloadStatus:
		b.sched.Status(workerID, *p)
	case *protocol.DownloadFail:
		b.sched.Fail(workerID, p.JobID, p.Reason)
	case *protocol.DownloadFinish:
		if delivery, ok := b.sched.BeginFinish(workerID, p.JobID); ok {
			b.spawn(func(ctx context.Context) { b.deliver(ctx, delivery) })
		}
	}
}
