package downloader

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"ytmusicdl/internal/protocol"
)

const watchBase = "https://youtube.com/watch?v="

// Status strings reported while a job runs.
const (
	StatusExtracting   = "Extracting audio"
	StatusSponsorblock = "Removing SponsorBlock segments"
	StatusMetadata     = "Applying metadata"
	StatusCover        = "Applying cover"
)

var progressLine = regexp.MustCompile(`^(\d+)/(\d+)$`)

// outputRules maps yt-dlp postprocessor markers to status strings. The first
// matching rule wins.
var outputRules = []struct {
	marker string
	status string
}{
	{"[ExtractAudio]", StatusExtracting},
	{"[ModifyChapters]", StatusSponsorblock},
	{"[Metadata]", StatusMetadata},
}

// Update is one classified line of yt-dlp output. Fraction is negative when
// the line carries only a status.
type Update struct {
	Fraction float64
	Status   string
}

// Classify turns one stdout line into an Update. Lines that carry neither
// progress nor a known marker are ignored.
func Classify(line string) (Update, bool) {
	line = strings.TrimSpace(line)
	if m := progressLine.FindStringSubmatch(line); m != nil {
		current, err1 := strconv.ParseFloat(m[1], 64)
		total, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || total <= 0 {
			return Update{}, false
		}
		fraction := math.Round(current/total*1000) / 1000
		return Update{Fraction: min(fraction, 1)}, true
	}
	for _, rule := range outputRules {
		if strings.Contains(line, rule.marker) {
			return Update{Fraction: -1, Status: rule.status}, true
		}
	}
	return Update{}, false
}

// JobSpec is everything needed to build the yt-dlp command line.
type JobSpec struct {
	Output         string // yt-dlp output template
	Metadata       protocol.VideoMetadata
	Lyrics         string
	Settings       protocol.Settings
	MaxAudioLength int
	CookiesPath    string
}

// YtDlpArgs builds the argument vector for one extraction.
func YtDlpArgs(spec JobSpec) []string {
	args := []string{
		"-vv",
		"-f", formatSelector(spec.Settings.AudioBitrate),
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
	}
	if spec.CookiesPath != "" {
		args = append(args, "--cookies", spec.CookiesPath)
	}
	if spec.Settings.UseSponsorblock && len(spec.Settings.SponsorblockSegments) > 0 {
		args = append(args, "--sponsorblock-remove", strings.Join(spec.Settings.SponsorblockSegments, ","))
	}
	args = append(args,
		"--match-filter", matchFilter(spec.MaxAudioLength),
		"--progress-template", "download:%(progress.downloaded_bytes)d/%(progress.total_bytes)d",
		"--newline",
		"--progress",
		"-o", spec.Output,
		"--postprocessor-args", "ExtractAudio:" + postprocessorArgs(spec),
		watchBase + spec.Metadata.VideoID,
	)
	return args
}

func formatSelector(bitrate int) string {
	if bitrate <= 0 {
		return "bestaudio"
	}
	return "bestaudio[abr<=" + strconv.Itoa(bitrate) + "]/bestaudio"
}

func matchFilter(maxAudioLength int) string {
	if maxAudioLength <= 0 {
		return "!is_live"
	}
	return "duration < " + strconv.Itoa(maxAudioLength) + " & !is_live"
}

// postprocessorArgs renders the ffmpeg metadata flags yt-dlp passes to its
// audio extractor. yt-dlp splits the string shell-style, so values are
// quoted with backslash and quote escaped.
func postprocessorArgs(spec JobSpec) string {
	meta := spec.Metadata
	track := ""
	if meta.Track > 0 {
		track = strconv.Itoa(meta.Track)
	}
	parts := []string{
		metadataArg("title", meta.Title),
		metadataArg("artist", strings.Join(meta.Artists, " & ")),
		metadataArg("album", meta.Album),
		metadataArg("track", track),
	}
	if spec.Settings.SaveLyrics && strings.TrimSpace(spec.Lyrics) != "" {
		parts = append(parts, metadataArg("lyrics", spec.Lyrics))
	}
	return strings.Join(parts, " ")
}

var metadataEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func metadataArg(key, value string) string {
	return `-metadata "` + key + "=" + metadataEscaper.Replace(value) + `"`
}

// CoverArgs builds the ffmpeg command that embeds the image read from stdin
// into pre and writes out.
func CoverArgs(pre, out string) []string {
	return []string{
		"-y",
		"-loglevel", "error",
		"-i", pre,
		"-i", "-",
		"-map", "0",
		"-map", "1",
		"-c", "copy",
		"-id3v2_version", "3",
		"-metadata:s:v", "title=Album cover",
		"-metadata:s:v", "comment=Cover (front)",
		out,
	}
}
