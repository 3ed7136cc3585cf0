package validation

import (
	"encoding/json"

	"ytmusicdl/internal/protocol"
)

// DecodeSettings validates raw and, when it passes, decodes it.
func DecodeSettings(raw json.RawMessage) (protocol.Settings, Result) {
	result := SettingsSchema.ValidateJSON(raw)
	if result.Failed() {
		return protocol.Settings{}, result
	}
	var settings protocol.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return protocol.Settings{}, Result{Violations: []string{"Expected object"}}
	}
	if settings.SponsorblockSegments == nil {
		settings.SponsorblockSegments = []string{}
	}
	return settings, result
}

// DecodeJob validates a job-create payload and decodes it.
func DecodeJob(create *protocol.JobCreate) (protocol.JobRequest, Result) {
	result := JobSchema.ValidateJSON(create.Raw)
	if result.Failed() {
		return protocol.JobRequest{}, result
	}
	req, err := create.Request()
	if err != nil {
		return protocol.JobRequest{}, Result{Violations: []string{"Expected object"}}
	}
	return req, result
}

// VideoIDOf extracts video_id from a payload that failed validation so the
// rejection can still name the video. Empty when absent or not a string.
func VideoIDOf(raw json.RawMessage) string {
	var probe struct {
		VideoID any `json:"video_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	id, _ := probe.VideoID.(string)
	return id
}
