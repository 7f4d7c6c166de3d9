package ingest

import (
	"encoding/json"
	"io"
	"sync"

	"example.com/nbsgate/internal/nbs"
)

// FrameRecord is one NDJSON line describing a decoded frame.
type FrameRecord struct {
	Source     string `json:"source,omitempty"`
	Offset     int64  `json:"offset"`
	Length     int    `json:"length"`
	Command    uint8  `json:"command"`
	Datastream uint8  `json:"datastream"`
	FhSource   uint8  `json:"fhSource"`
	SeqNum     uint32 `json:"seqNum"`
	RunNum     uint16 `json:"runNum"`
	Data       bool   `json:"data"`
	ProdSeqNum uint32 `json:"prodSeqNum,omitempty"`
	BlockNum   uint16 `json:"blockNum,omitempty"`
	BlockSize  uint16 `json:"blockSize,omitempty"`
}

// NewFrameRecord fills a record from decoded headers.
func NewFrameRecord(offset int64, length int, fh *nbs.FrameHeader, pdh *nbs.ProductDefinitionHeader) FrameRecord {
	rec := FrameRecord{
		Offset:     offset,
		Length:     length,
		Command:    fh.Command,
		Datastream: fh.Datastream,
		FhSource:   fh.Source,
		SeqNum:     fh.SeqNum,
		RunNum:     fh.RunNum,
	}
	if pdh != nil {
		rec.Data = true
		rec.ProdSeqNum = pdh.ProdSeqNum
		rec.BlockNum = pdh.BlockNum
		rec.BlockSize = pdh.DataBlockSize
	}
	return rec
}

// NDJSONWriter streams newline-delimited JSON objects to the underlying
// writer.
type NDJSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewNDJSONWriter wraps the provided writer with a helper that writes
// newline-delimited JSON.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{writer: w}
}

// WriteRecord marshals the frame record and writes it as a single NDJSON
// line.
func (w *NDJSONWriter) WriteRecord(rec FrameRecord) error {
	return w.WriteObject(rec)
}

// WriteObject marshals the provided value to JSON and writes it followed
// by a newline.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	_, err = w.writer.Write([]byte("\n"))
	return err
}
