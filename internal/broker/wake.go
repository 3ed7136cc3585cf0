package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"ytmusicdl/internal/logging"
)

// wakeDownloaders pings every configured wake url so sleeping hosts spin up
// their downloaders. Requests are rate limited across all clients.
func (b *Broker) wakeDownloaders() {
	if len(b.cfg.Manager.WakeURLs) == 0 {
		return
	}
	if !b.wakeLimiter.Allow() {
		b.logger.Debug("wake request ignored", logging.String("reason", "rate limited"))
		return
	}
	for _, target := range b.cfg.Manager.WakeURLs {
		b.spawn(func(ctx context.Context) {
			if err := b.wake(ctx, target); err != nil {
				logging.WarnWithContext(b.logger, "downloader wake failed", "wake_failed",
					logging.String("url", target),
					logging.Error(err),
					logging.String(logging.FieldImpact, "downloader host may stay asleep"),
				)
				return
			}
			b.logger.Info("downloader woken", logging.String("url", target))
		})
	}
}

func (b *Broker) wake(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, wakeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("wake url returned %d", resp.StatusCode)
	}
	return nil
}
