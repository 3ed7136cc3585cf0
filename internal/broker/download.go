package broker

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"ytmusicdl/internal/registry"
)

// ArchiveFilename is the name offered to the browser for a session archive.
func ArchiveFilename(t time.Time) string {
	return t.Format("Downloads at 02-01-2006 15-04.zip")
}

// serveArchive streams a packaged session archive.
func (b *Broker) serveArchive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	status := registry.PackagingStatus("")
	b.reg.View(func(tx *registry.Tx) {
		if session := tx.Session(sessionID); session != nil {
			status = session.Packaging
		}
	})
	switch status {
	case "":
		http.Error(w, "Unknown session to download", http.StatusNotFound)
		return
	case registry.PackagingDone:
	default:
		http.Error(w, "Cannot yet download file", http.StatusForbidden)
		return
	}

	file, err := os.Open(b.life.ArchivePath(sessionID))
	if err != nil {
		b.logRequestError(r, "archive open failed", err)
		http.Error(w, "Archive no longer available", http.StatusGone)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Archive no longer available", http.StatusGone)
		return
	}

	name := ArchiveFilename(b.now())
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}
