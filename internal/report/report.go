package report

import (
	"encoding/json"
	"os"
	"time"
)

// CommandCount tallies frames sharing a frame-level header command.
type CommandCount struct {
	Command string `json:"command"`
	Frames  int64  `json:"frames"`
	Bytes   int64  `json:"bytes"`
}

// DatastreamCount tallies data-transfer frames per broadcast channel.
type DatastreamCount struct {
	Datastream uint8 `json:"datastream"`
	Frames     int64 `json:"frames"`
	Products   int64 `json:"products"`
}

// IngestSummary describes one capture scan.
type IngestSummary struct {
	Capture     string            `json:"capture"`
	Digest      string            `json:"digest"` // SHA-256 of the capture, hex
	GeneratedAt time.Time         `json:"generatedAt"`
	Elapsed     time.Duration     `json:"elapsed"`
	Bytes       int64             `json:"bytes"`
	Frames      int64             `json:"frames"`
	Resyncs     int64             `json:"resyncs"`
	Duplicates  int64             `json:"duplicates"`
	Late        int64             `json:"late"`
	Dropped     int64             `json:"dropped"`
	Commands    []CommandCount    `json:"commands"`
	Datastreams []DatastreamCount `json:"datastreams"`
}

func SaveSummaryJSON(sum IngestSummary, out string) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (IngestSummary, error) {
	var sum IngestSummary
	b, err := os.ReadFile(path)
	if err != nil {
		return sum, err
	}
	err = json.Unmarshal(b, &sum)
	return sum, err
}
