package validation

import (
	"net/url"
	"regexp"
)

// SponsorblockSegments are the segment categories a client may remove.
var SponsorblockSegments = []string{
	"music_offtopic", "sponsor", "intro", "outro",
	"selfpromo", "preview", "filler", "interaction",
}

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	allowedCoverHosts = []*regexp.Regexp{
		regexp.MustCompile(`^[0-9a-z]{1,3}\.googleusercontent\.com$`),
		regexp.MustCompile(`^i\.ytimg\.com$`),
		regexp.MustCompile(`^img\.youtube\.com$`),
	}
)

// SettingsSchema validates settings-update payloads.
var SettingsSchema = Schema{
	{Key: "version", Kind: KindNumber, Required: true, Min: bound(1), Max: bound(999), DisallowFloats: true},
	{Key: "useAlbumSubfolders", Kind: KindBool, Required: true},
	{Key: "audioBitrate", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(320), DisallowFloats: true},
	{Key: "useSponsorblock", Kind: KindBool, Required: true},
	{Key: "sponsorblockSegments", Kind: KindArray, Required: true, Options: SponsorblockSegments},
	{Key: "useMaxResCovers", Kind: KindBool, Required: true},
	{Key: "autoPackageOnFinish", Kind: KindBool},
	{Key: "shouldAttemptSessionRecovery", Kind: KindBool},
	{Key: "saveLyrics", Kind: KindBool},
}

// JobSchema validates job-create payloads.
var JobSchema = Schema{
	{Key: "video_id", Kind: KindString, Required: true, Pattern: videoIDPattern},
	{Key: "cover", Kind: KindString, Check: coverAllowed},
	{Key: "artists", Kind: KindArray, Required: true, ItemKind: kind(KindString)},
	{Key: "title", Kind: KindString},
	{Key: "album", Kind: KindString},
	{Key: "track", Kind: KindNumber, Min: bound(1), Max: bound(999), DisallowFloats: true},
	{Key: "artist_folder", Kind: KindBool, Required: true},
	{Key: "album_folder", Kind: KindBool, Required: true},
	{Key: "lyrics", Kind: KindString},
	{Key: "synced_lyrics", Kind: KindString},
}

// coverAllowed leaves non-strings to the type check.
func coverAllowed(value any) bool {
	raw, ok := value.(string)
	if !ok {
		return true
	}
	return CoverURLAllowed(raw)
}

// CoverURLAllowed accepts https URLs on known image hosts without credentials
// or an explicit port.
func CoverURLAllowed(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "https" || parsed.User != nil || parsed.Port() != "" {
		return false
	}
	for _, host := range allowedCoverHosts {
		if host.MatchString(parsed.Host) {
			return true
		}
	}
	return false
}
