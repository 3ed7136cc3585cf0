package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// emptyID3 is an ID3v2.3 tag header with no frames.
var emptyID3 = []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 0}

// mp3Frame is a 128 kbit/s 44.1 kHz MPEG-1 Layer III frame header.
var mp3Frame = []byte{0xFF, 0xFB, 0x90, 0x64}

// FakeAudio returns size bytes that start like an MP3 file: an empty ID3 tag
// followed by repeated frame headers. Sizes below the tag length are padded
// up to it.
func FakeAudio(size int64) []byte {
	size = max(size, int64(len(emptyID3)))
	var buf bytes.Buffer
	buf.Grow(int(size))
	buf.Write(emptyID3)
	for int64(buf.Len()) < size {
		buf.Write(mp3Frame)
	}
	return buf.Bytes()[:size]
}

// WriteFile writes FakeAudio(size) to path, creating parent directories.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, FakeAudio(size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
