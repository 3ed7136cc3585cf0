// Package fileutil holds the small filesystem helpers shared by the manager
// and the downloader.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var windowsReserved = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizeSegment turns user-controlled text into a single safe path element.
// It returns "" when nothing usable remains.
func SanitizeSegment(value string) string {
	value = norm.NFC.String(value)
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`<>:"/\|?*`, r):
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	cleaned = strings.TrimLeft(cleaned, ". ")
	if cleaned == "" {
		return ""
	}
	stem := strings.ToLower(cleaned)
	if idx := strings.IndexByte(stem, '.'); idx >= 0 {
		stem = stem[:idx]
	}
	if _, reserved := windowsReserved[stem]; reserved {
		cleaned += "_"
	}
	return cleaned
}

// SanitizeSegments sanitizes each value and drops the ones that end up empty.
func SanitizeSegments(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := SanitizeSegment(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// WriteAtomic streams r into dst through a temp file in the same directory and
// renames it into place. It returns the number of bytes written.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, mode)
	}
	if err == nil {
		err = os.Rename(tmpName, dst)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	return written, nil
}

// ClearDir removes every entry inside dir except names listed in keep. A
// missing dir is created. Errors are joined so one stuck entry does not stop
// the sweep.
func ClearDir(dir string, keep ...string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	skip := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		skip[name] = struct{}{}
	}
	var errs []error
	for _, entry := range entries {
		if _, ok := skip[entry.Name()]; ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveQuietly deletes paths, ignoring ones that do not exist.
func RemoveQuietly(paths ...string) error {
	var errs []error
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
