package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"ytmusicdl/internal/protocol"
)

func TestEncodeWrapsEnvelope(t *testing.T) {
	pct := 0.5
	tests := []struct {
		name   string
		packet protocol.Packet
		want   string
	}{
		{"empty", protocol.PackageStart{}, `{"id":"package-start","data":{}}`},
		{"nil map", protocol.QueueUpdate(nil), `{"id":"queue-update","data":{}}`},
		{"map", protocol.QueueUpdate{"a": 1}, `{"id":"queue-update","data":{"a":1}}`},
		{"status percent", protocol.JobDownloadStatus{JobID: "j", Percentage: &pct}, `{"id":"job-download-status","data":{"job_id":"j","download_percentage":0.5}}`},
		{"status string", protocol.DownloadStatus{JobID: "j", Status: "Extracting audio"}, `{"id":"download-status","data":{"job_id":"j","status_string":"Extracting audio"}}`},
		{"pending", protocol.JobDownloadPending{JobID: "j", DownloaderID: "w"}, `{"id":"job-download-pending","data":{"job_id":"j","downloader_id":"w"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.Encode(tt.packet)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeClientDispatchesConcreteTypes(t *testing.T) {
	packet, err := protocol.DecodeClient([]byte(`{"id":"queue-remove","data":{"job_id":"abc"}}`))
	if err != nil {
		t.Fatalf("DecodeClient: %v", err)
	}
	remove, ok := packet.(*protocol.QueueRemove)
	if !ok || remove.JobID != "abc" {
		t.Fatalf("unexpected packet %#v", packet)
	}

	packet, err = protocol.DecodeClient([]byte(`{"id":"job-create","data":{"video_id":"dQw4w9WgXcQ","artists":["A"],"artist_folder":true,"album_folder":false,"track":3}}`))
	if err != nil {
		t.Fatalf("DecodeClient job-create: %v", err)
	}
	create, ok := packet.(*protocol.JobCreate)
	if !ok {
		t.Fatalf("expected *JobCreate, got %T", packet)
	}
	var raw map[string]any
	if err := json.Unmarshal(create.Raw, &raw); err != nil || raw["video_id"] != "dQw4w9WgXcQ" {
		t.Fatalf("raw payload not preserved: %v %v", raw, err)
	}
	req, err := create.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.VideoID != "dQw4w9WgXcQ" || req.Track != 3 || !req.ArtistFolder || req.AlbumFolder {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `hello`, protocol.ErrMalformed},
		{"missing id", `{"data":{}}`, protocol.ErrMalformed},
		{"missing data", `{"id":"package-request"}`, protocol.ErrMalformed},
		{"array data", `{"id":"package-request","data":[]}`, protocol.ErrMalformed},
		{"unknown id", `{"id":"welcome","data":{}}`, protocol.ErrUnknownPacket},
		{"bad field type", `{"id":"queue-remove","data":{"job_id":5}}`, protocol.ErrInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.DecodeClient([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestWorkerChannelRoundTrip(t *testing.T) {
	start := protocol.DownloadStart{
		JobID:    "job-1",
		Metadata: protocol.VideoMetadata{VideoID: "dQw4w9WgXcQ", Artists: []string{"Rick"}},
		Settings: protocol.DefaultSettings(),
	}
	raw, err := protocol.Encode(start)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := protocol.DecodeManager(raw)
	if err != nil {
		t.Fatalf("DecodeManager: %v", err)
	}
	got, ok := decoded.(*protocol.DownloadStart)
	if !ok || got.JobID != "job-1" || got.Settings.SponsorblockSegments[0] != "music_offtopic" {
		t.Fatalf("unexpected decode %#v", decoded)
	}

	if _, err := protocol.DecodeWorker(raw); !errors.Is(err, protocol.ErrUnknownPacket) {
		t.Fatalf("manager packet must not decode on the worker channel, got %v", err)
	}
}

func TestCloseCodeNames(t *testing.T) {
	if protocol.CloseDownloadFinished.String() != "download_finished" {
		t.Fatalf("unexpected name %q", protocol.CloseDownloadFinished)
	}
	if protocol.CloseCode(1).String() != "unknown" {
		t.Fatal("expected unknown for foreign codes")
	}
}
