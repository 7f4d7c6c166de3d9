package common

import (
	"strings"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.AddFrame(100)
	m.AddFrame(50)
	m.AddBytes(25)
	m.IncResync()
	m.IncDuplicate()
	m.IncLate()
	m.IncDropped()
	m.Stop()

	s := m.Snapshot()
	if s.Frames != 2 {
		t.Errorf("Frames = %d, want 2", s.Frames)
	}
	if s.Bytes != 175 {
		t.Errorf("Bytes = %d, want 175", s.Bytes)
	}
	if s.Resyncs != 1 || s.Duplicates != 1 || s.Late != 1 || s.Dropped != 1 {
		t.Errorf("counters = %+v", s)
	}
	if s.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", s.Duration)
	}
}

func TestMetricsIgnoresNonPositiveSizes(t *testing.T) {
	m := NewMetrics()
	m.AddFrame(0)
	m.AddFrame(-5)
	m.AddBytes(-1)
	if s := m.Snapshot(); s.Frames != 0 || s.Bytes != 0 {
		t.Errorf("snapshot = %+v, want zero counters", s)
	}
}

func TestSnapshotCompletion(t *testing.T) {
	tests := []struct {
		bytes, total int64
		want         float64
	}{
		{0, 0, 0},
		{50, 100, 0.5},
		{200, 100, 1}, // clamped
	}
	for _, tt := range tests {
		s := MetricsSnapshot{Bytes: tt.bytes, TotalBytes: tt.total}
		if got := s.Completion(); got != tt.want {
			t.Errorf("Completion(%d/%d) = %v, want %v", tt.bytes, tt.total, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 << 20, "5.00 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatProgressLine(t *testing.T) {
	withTotal := formatProgressLine(MetricsSnapshot{Bytes: 50, TotalBytes: 100})
	if !strings.Contains(withTotal, "%") {
		t.Errorf("line with total lacks a percentage: %q", withTotal)
	}
	withoutTotal := formatProgressLine(MetricsSnapshot{Bytes: 50})
	if strings.Contains(withoutTotal, "%") && !strings.Contains(withoutTotal, "MiB/s") {
		t.Errorf("line without total malformed: %q", withoutTotal)
	}
}
