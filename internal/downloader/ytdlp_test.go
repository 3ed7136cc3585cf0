package downloader_test

import (
	"slices"
	"strings"
	"testing"

	"ytmusicdl/internal/downloader"
	"ytmusicdl/internal/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line     string
		ok       bool
		fraction float64
		status   string
	}{
		{line: "512/1024", ok: true, fraction: 0.5},
		{line: "  1/3 ", ok: true, fraction: 0.333},
		{line: "2048/1024", ok: true, fraction: 1},
		{line: "10/0", ok: false},
		{line: "[ExtractAudio] Destination: x.pre.mp3", ok: true, fraction: -1, status: downloader.StatusExtracting},
		{line: "[ModifyChapters] Removing chapters", ok: true, fraction: -1, status: downloader.StatusSponsorblock},
		{line: "[Metadata] Adding metadata", ok: true, fraction: -1, status: downloader.StatusMetadata},
		{line: "[download] Destination: x.webm", ok: false},
		{line: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			update, ok := downloader.Classify(tt.line)
			if ok != tt.ok {
				t.Fatalf("Classify(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if !ok {
				return
			}
			if update.Fraction != tt.fraction || update.Status != tt.status {
				t.Fatalf("Classify(%q) = %+v, want fraction %v status %q", tt.line, update, tt.fraction, tt.status)
			}
		})
	}
}

func TestYtDlpArgs(t *testing.T) {
	spec := downloader.JobSpec{
		Output: "/work/job.pre.%(ext)s",
		Metadata: protocol.VideoMetadata{
			VideoID: "dQw4w9WgXcQ",
			Title:   `Say "Hi"`,
			Artists: []string{"A", "B"},
			Album:   "Album",
			Track:   3,
		},
		Lyrics: "la la",
		Settings: protocol.Settings{
			AudioBitrate:         128,
			UseSponsorblock:      true,
			SponsorblockSegments: []string{"intro", "outro"},
			SaveLyrics:           true,
		},
		MaxAudioLength: 900,
		CookiesPath:    "/work/cookies.txt",
	}
	args := downloader.YtDlpArgs(spec)

	wantPairs := map[string]string{
		"-f":                    "bestaudio[abr<=128]/bestaudio",
		"--audio-format":        "mp3",
		"--cookies":             "/work/cookies.txt",
		"--sponsorblock-remove": "intro,outro",
		"--match-filter":        "duration < 900 & !is_live",
		"-o":                    "/work/job.pre.%(ext)s",
	}
	for flag, want := range wantPairs {
		i := slices.Index(args, flag)
		if i < 0 || i+1 >= len(args) {
			t.Fatalf("flag %s missing from %v", flag, args)
		}
		if args[i+1] != want {
			t.Fatalf("flag %s = %q, want %q", flag, args[i+1], want)
		}
	}
	if last := args[len(args)-1]; last != "https://youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("unexpected url %q", last)
	}

	i := slices.Index(args, "--postprocessor-args")
	pp := args[i+1]
	for _, want := range []string{
		`ExtractAudio:-metadata "title=Say \"Hi\""`,
		`-metadata "artist=A & B"`,
		`-metadata "album=Album"`,
		`-metadata "track=3"`,
		`-metadata "lyrics=la la"`,
	} {
		if !strings.Contains(pp, want) {
			t.Fatalf("postprocessor args %q missing %q", pp, want)
		}
	}
}

func TestYtDlpArgsDefaults(t *testing.T) {
	args := downloader.YtDlpArgs(downloader.JobSpec{
		Output:   "out",
		Metadata: protocol.VideoMetadata{VideoID: "abc"},
		Lyrics:   "ignored",
	})
	for _, flag := range []string{"--cookies", "--sponsorblock-remove"} {
		if slices.Contains(args, flag) {
			t.Fatalf("unexpected %s in %v", flag, args)
		}
	}
	if i := slices.Index(args, "-f"); args[i+1] != "bestaudio" {
		t.Fatalf("unexpected format %q", args[i+1])
	}
	if i := slices.Index(args, "--match-filter"); args[i+1] != "!is_live" {
		t.Fatalf("unexpected match filter %q", args[i+1])
	}
	if i := slices.Index(args, "--postprocessor-args"); strings.Contains(args[i+1], "lyrics") {
		t.Fatalf("lyrics written without SaveLyrics: %q", args[i+1])
	}
}

func TestCoverArgsReadsImageFromStdin(t *testing.T) {
	args := downloader.CoverArgs("in.mp3", "out.mp3")
	if args[len(args)-1] != "out.mp3" {
		t.Fatalf("output must be last: %v", args)
	}
	if !slices.Contains(args, "-") || !slices.Contains(args, "in.mp3") {
		t.Fatalf("expected both inputs in %v", args)
	}
}

func TestMaxResCoverURL(t *testing.T) {
	tests := map[string]string{
		"https://lh3.googleusercontent.com/abc=w60-h60-l90-rj": "https://lh3.googleusercontent.com/abc",
		"https://lh3.googleusercontent.com/abc=w544-h544":      "https://lh3.googleusercontent.com/abc",
		"https://i.ytimg.com/vi/x/hqdefault.jpg":               "https://i.ytimg.com/vi/x/hqdefault.jpg",
	}
	for in, want := range tests {
		if got := downloader.MaxResCoverURL(in); got != want {
			t.Fatalf("MaxResCoverURL(%q) = %q, want %q", in, got, want)
		}
	}
}
