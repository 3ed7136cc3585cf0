package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"ytmusicdl/internal/fileutil"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/scheduler"
)

// ReasonWriteFailed is reported when the finished audio could not be stored.
const ReasonWriteFailed = "Could not write audio file"

// deliver pulls the finished audio from the worker, stores it in the session
// directory and releases the worker. Auto-packaging is checked afterwards.
func (b *Broker) deliver(ctx context.Context, d scheduler.Delivery) {
	failure := ""
	path, err := b.fetchArtifact(ctx, d)
	if err != nil {
		failure = ReasonWriteFailed
		logging.WarnWithContext(b.logger, "artifact transfer failed", "artifact_fetch_failed",
			logging.String(logging.FieldJobID, d.JobID),
			logging.String(logging.FieldWorkerID, d.WorkerID),
			logging.String(logging.FieldSessionID, d.SessionID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job reported as failed"),
			logging.String(logging.FieldErrorHint, "check that the downloader contact url is reachable from the manager"),
		)
	} else {
		b.logger.Debug("artifact stored",
			logging.String(logging.FieldJobID, d.JobID),
			logging.String("path", path),
		)
	}

	sessionID := b.sched.Complete(d, failure)
	if sessionID == "" {
		if path != "" {
			removeStored(path)
		}
		return
	}
	b.pack.Package(sessionID, true)
}

func (b *Broker) fetchArtifact(ctx context.Context, d scheduler.Delivery) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.FetchTimeout())
	defer cancel()

	endpoint := strings.TrimRight(d.ContactURL, "/") + "/" + url.PathEscape(d.JobID)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch artifact: worker returned %d", resp.StatusCode)
	}

	target, err := reservePath(OutputPath(b.life.SessionDir(d.SessionID), d.Settings, d.Request))
	if err != nil {
		return "", err
	}
	if _, err := fileutil.WriteAtomic(target, resp.Body, 0o644); err != nil {
		_ = os.Remove(target)
		return "", err
	}

	if d.Settings.SaveLyrics && strings.TrimSpace(d.Request.SyncedLyrics) != "" {
		if _, err := fileutil.WriteAtomic(lyricsPath(target), strings.NewReader(d.Request.SyncedLyrics), 0o644); err != nil {
			logging.WarnWithContext(b.logger, "synced lyrics not written", "lyrics_write_failed",
				logging.String(logging.FieldJobID, d.JobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "track stored without lrc file"),
			)
		}
	}
	return target, nil
}

func lyricsPath(track string) string {
	return strings.TrimSuffix(track, ".mp3") + ".lrc"
}

// removeStored drops a track whose job no longer exists.
func removeStored(track string) {
	_ = fileutil.RemoveQuietly(track, lyricsPath(track))
}
