package downloader

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const cookiesFile = "cookies.txt"

// WriteCookies decodes the base64 Netscape cookie jar into dir and returns
// its path. An empty value writes nothing and returns "".
func WriteCookies(dir, encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode cookies: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cookie dir: %w", err)
	}
	path := filepath.Join(dir, cookiesFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write cookies: %w", err)
	}
	return path, nil
}
