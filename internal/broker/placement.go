package broker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ytmusicdl/internal/fileutil"
	"ytmusicdl/internal/protocol"
)

// OutputPath returns where a finished track lands inside the session root.
//
// With album subfolders the layout is artist/album/, each level gated by the
// job's folder flag. Without them a single folder is used: "artist - album"
// when both are wanted and known, otherwise whichever one is. Empty levels
// collapse into the session root.
func OutputPath(root string, settings protocol.Settings, req protocol.JobRequest) string {
	artistName := strings.Join(req.Artists, " & ")
	albumName := req.Album

	var artist, album string
	if settings.UseAlbumSubfolders {
		if req.ArtistFolder {
			artist = artistName
		}
		if req.AlbumFolder {
			album = albumName
		}
	} else {
		switch {
		case artistName != "" && albumName != "" && req.ArtistFolder && req.AlbumFolder:
			album = artistName + " - " + albumName
		case req.ArtistFolder && artistName != "":
			album = artistName
		case req.AlbumFolder && albumName != "":
			album = albumName
		}
	}

	parts := append([]string{root}, fileutil.SanitizeSegments(artist, album)...)
	return filepath.Join(append(parts, trackFileName(req)+".mp3")...)
}

func trackFileName(req protocol.JobRequest) string {
	name := fileutil.SanitizeSegment(req.Title)
	if name == "" {
		name = fileutil.SanitizeSegment(req.VideoID)
	}
	if req.Track > 0 {
		name = fmt.Sprintf("%02d - %s", req.Track, name)
	}
	return name
}

// reservePath claims path, or the first free "stem (n).ext" variant, by
// creating an empty placeholder exclusively. Concurrent deliveries of the
// same track name therefore never share a file. The caller replaces or
// removes the placeholder.
func reservePath(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 2; ; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return candidate, f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("reserve %s: %w", filepath.Base(candidate), err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
}
