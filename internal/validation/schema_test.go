package validation_test

import (
	"encoding/json"
	"slices"
	"testing"

	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/validation"
)

func validSettings() map[string]any {
	return map[string]any{
		"version":              float64(3),
		"useAlbumSubfolders":   true,
		"audioBitrate":         float64(128),
		"useSponsorblock":      true,
		"sponsorblockSegments": []any{"sponsor", "intro"},
		"useMaxResCovers":      false,
	}
}

func validJob() map[string]any {
	return map[string]any{
		"video_id":      "dQw4w9WgXcQ",
		"artists":       []any{"Rick Astley"},
		"title":         "Never Gonna Give You Up",
		"track":         float64(1),
		"cover":         "https://lh3.googleusercontent.com/abc=w60-h60-l90-rj",
		"artist_folder": true,
		"album_folder":  false,
	}
}

func TestSettingsSchema(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   []string
	}{
		{"valid", func(map[string]any) {}, nil},
		{"optional flags", func(m map[string]any) { m["saveLyrics"] = false; m["autoPackageOnFinish"] = true }, nil},
		{"unknown key", func(m map[string]any) { m["theme"] = "dark" }, []string{"Unknown in schema: theme"}},
		{"float bitrate", func(m map[string]any) { m["audioBitrate"] = 12.5 }, []string{"Number is too large, too small or cannot be a float for: audioBitrate"}},
		{"bitrate too high", func(m map[string]any) { m["audioBitrate"] = float64(321) }, []string{"Number is too large, too small or cannot be a float for: audioBitrate"}},
		{"wrong type", func(m map[string]any) { m["useSponsorblock"] = "yes" }, []string{"Primitive type invalid for: useSponsorblock"}},
		{"bad segment", func(m map[string]any) { m["sponsorblockSegments"] = []any{"sponsor", "ads"} }, []string{"Value is not an option or invalid for: sponsorblockSegments"}},
		{"segments not array", func(m map[string]any) { m["sponsorblockSegments"] = "sponsor" }, []string{"Expected array for: sponsorblockSegments"}},
		{"missing required", func(m map[string]any) { delete(m, "version") }, []string{"Required keys missing"}},
		{"several", func(m map[string]any) { m["zzz"] = 1; delete(m, "useMaxResCovers"); m["audioBitrate"] = "x" }, []string{
			"Primitive type invalid for: audioBitrate",
			"Unknown in schema: zzz",
			"Required keys missing",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validSettings()
			tt.mutate(data)
			got := validation.SettingsSchema.Validate(data)
			if !slices.Equal(got.Violations, tt.want) {
				t.Fatalf("violations = %q, want %q", got.Violations, tt.want)
			}
			if got.Failed() != (len(tt.want) > 0) {
				t.Fatalf("Failed() = %v", got.Failed())
			}
		})
	}
}

func TestJobSchema(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   []string
	}{
		{"valid", func(map[string]any) {}, nil},
		{"short id", func(m map[string]any) { m["video_id"] = "abc" }, []string{"Pattern does not match for: video_id"}},
		{"cover http", func(m map[string]any) { m["cover"] = "http://i.ytimg.com/vi/x.jpg" }, []string{"Validator function failed for: cover"}},
		{"cover foreign host", func(m map[string]any) { m["cover"] = "https://evil.example.com/x.jpg" }, []string{"Validator function failed for: cover"}},
		{"cover non string", func(m map[string]any) { m["cover"] = float64(4) }, []string{"Primitive type invalid for: cover"}},
		{"artists item type", func(m map[string]any) { m["artists"] = []any{"A", float64(2)} }, []string{"Value is not an option or invalid for: artists"}},
		{"track zero", func(m map[string]any) { m["track"] = float64(0) }, []string{"Number is too large, too small or cannot be a float for: track"}},
		{"missing folder flag", func(m map[string]any) { delete(m, "album_folder") }, []string{"Required keys missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validJob()
			tt.mutate(data)
			got := validation.JobSchema.Validate(data)
			if !slices.Equal(got.Violations, tt.want) {
				t.Fatalf("violations = %q, want %q", got.Violations, tt.want)
			}
		})
	}
}

func TestCoverURLAllowed(t *testing.T) {
	tests := map[string]bool{
		"https://lh3.googleusercontent.com/a=w60":       true,
		"https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg":     true,
		"https://img.youtube.com/vi/x/0.jpg":            true,
		"https://abcd.googleusercontent.com/a":          false,
		"https://user:pw@i.ytimg.com/x":                 false,
		"https://i.ytimg.com:8443/x":                    false,
		"https://i.ytimg.com.evil.com/x":                false,
		"ftp://i.ytimg.com/x":                           false,
		"::not a url":                                   false,
		"https://lh3XgoogleusercontentXcom.example/a=w": false,
	}
	for raw, want := range tests {
		if got := validation.CoverURLAllowed(raw); got != want {
			t.Errorf("CoverURLAllowed(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestDecodeSettingsDropsClientBookkeeping(t *testing.T) {
	data := validSettings()
	data["shouldAttemptSessionRecovery"] = true
	raw, _ := json.Marshal(data)

	settings, result := validation.DecodeSettings(raw)
	if result.Failed() {
		t.Fatalf("unexpected violations %v", result.Violations)
	}
	want := protocol.Settings{
		UseAlbumSubfolders:   true,
		AudioBitrate:         128,
		UseSponsorblock:      true,
		SponsorblockSegments: []string{"sponsor", "intro"},
	}
	if !slices.Equal(settings.SponsorblockSegments, want.SponsorblockSegments) || settings.AudioBitrate != 128 || settings.UseMaxResCovers {
		t.Fatalf("unexpected settings %+v", settings)
	}

	if _, result := validation.DecodeSettings(json.RawMessage(`[1]`)); !result.Failed() {
		t.Fatal("expected non-object settings to fail")
	}
}

func TestDecodeJob(t *testing.T) {
	raw, _ := json.Marshal(validJob())
	req, result := validation.DecodeJob(&protocol.JobCreate{Raw: raw})
	if result.Failed() {
		t.Fatalf("unexpected violations %v", result.Violations)
	}
	if req.VideoID != "dQw4w9WgXcQ" || !req.ArtistFolder || req.Track != 1 {
		t.Fatalf("unexpected request %+v", req)
	}

	bad := json.RawMessage(`{"video_id":"nope","artists":[]}`)
	if _, result := validation.DecodeJob(&protocol.JobCreate{Raw: bad}); !result.Failed() {
		t.Fatal("expected failure")
	}
	if got := validation.VideoIDOf(bad); got != "nope" {
		t.Fatalf("VideoIDOf = %q", got)
	}
	if got := validation.VideoIDOf(json.RawMessage(`{"video_id":3}`)); got != "" {
		t.Fatalf("VideoIDOf non-string = %q", got)
	}
}
