package nbs

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// encodeFrameHeader builds a valid 16-byte frame-level header with the
// checksum filled in.
func encodeFrameHeader(command, datastream, source uint8, seq uint32, run uint16) []byte {
	h := make([]byte, FrameHeaderSize)
	h[0] = 0xFF
	h[2] = 0x14 // version 1, size 16 bytes
	h[4] = command
	h[5] = datastream
	h[6] = source
	binary.BigEndian.PutUint32(h[8:12], seq)
	binary.BigEndian.PutUint16(h[12:14], run)
	binary.BigEndian.PutUint16(h[14:16], HeaderChecksum(h))
	return h
}

func TestDecodeFrameHeader(t *testing.T) {
	buf := encodeFrameHeader(CmdData, 1, 8, 1, 0)

	fh, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("DecodeFrameHeader: %v", err)
	}
	if fh.Command != CmdData {
		t.Errorf("Command = %d, want %d", fh.Command, CmdData)
	}
	if fh.Version != 1 {
		t.Errorf("Version = %d, want 1", fh.Version)
	}
	if fh.Size != FrameHeaderSize {
		t.Errorf("Size = %d, want %d", fh.Size, FrameHeaderSize)
	}
	if fh.Datastream != 1 {
		t.Errorf("Datastream = %d, want 1", fh.Datastream)
	}
	if fh.Source != 8 {
		t.Errorf("Source = %d, want 8", fh.Source)
	}
	if fh.SeqNum != 1 {
		t.Errorf("SeqNum = %d, want 1", fh.SeqNum)
	}
	if fh.RunNum != 0 {
		t.Errorf("RunNum = %d, want 0", fh.RunNum)
	}
	if got := HeaderChecksum(buf); got != fh.Checksum {
		t.Errorf("HeaderChecksum = %d, decoded checksum %d", got, fh.Checksum)
	}
}

func TestDecodeFrameHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte)
		want   error
	}{
		{
			name:   "no sentinel",
			mutate: func(b []byte) { b[0] = 0xFE },
			want:   ErrNoSentinel,
		},
		{
			name:   "wrong size nibble",
			mutate: func(b []byte) { b[2] = 0x15; fixChecksum(b) },
			want:   ErrInvalidHeader,
		},
		{
			name:   "checksum mismatch",
			mutate: func(b []byte) { b[14] ^= 0x01 },
			want:   ErrInvalidHeader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := encodeFrameHeader(CmdData, 1, 8, 1, 0)
			tt.mutate(buf)
			if _, err := DecodeFrameHeader(buf); !errors.Is(err, tt.want) {
				t.Fatalf("DecodeFrameHeader error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := DecodeFrameHeader(make([]byte, FrameHeaderSize-1)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short window error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func fixChecksum(b []byte) {
	binary.BigEndian.PutUint16(b[14:16], HeaderChecksum(b))
}

// Any single corrupted byte in the summed region must be caught, either
// by the sentinel check, the size check or the checksum.
func TestDecodeFrameHeaderRejectsBitFlips(t *testing.T) {
	for i := 0; i < 14; i++ {
		buf := encodeFrameHeader(CmdData, 0, 0, 1, 0)
		buf[i] ^= 0x01
		if _, err := DecodeFrameHeader(buf); err == nil {
			t.Errorf("flipped byte %d: header accepted, want rejection", i)
		}
	}
}

func encodeProductHeader(transferType uint8, totalSize, blkNum, blkSize uint16, prodSeq uint32) []byte {
	p := make([]byte, ProductHeaderMinSize)
	p[0] = 0x14 // version 1, size 16 bytes
	p[1] = transferType
	binary.BigEndian.PutUint16(p[2:4], totalSize)
	binary.BigEndian.PutUint16(p[4:6], blkNum)
	binary.BigEndian.PutUint16(p[8:10], blkSize)
	p[10] = 1
	p[11] = 1
	binary.BigEndian.PutUint32(p[12:16], prodSeq)
	return p
}

func TestDecodeProductHeader(t *testing.T) {
	fh := FrameHeader{Size: FrameHeaderSize, Command: CmdData}
	capacity := MaxFrameSize + FrameHeaderSize

	buf := encodeProductHeader(TransferInProg, ProductHeaderMinSize, 7, 512, 42)
	pdh, err := DecodeProductHeader(buf, &fh, capacity)
	if err != nil {
		t.Fatalf("DecodeProductHeader: %v", err)
	}
	if pdh.Size != ProductHeaderMinSize {
		t.Errorf("Size = %d, want %d", pdh.Size, ProductHeaderMinSize)
	}
	if pdh.PSHSize != 0 {
		t.Errorf("PSHSize = %d, want 0", pdh.PSHSize)
	}
	if pdh.BlockNum != 7 {
		t.Errorf("BlockNum = %d, want 7", pdh.BlockNum)
	}
	if pdh.DataBlockSize != 512 {
		t.Errorf("DataBlockSize = %d, want 512", pdh.DataBlockSize)
	}
	if pdh.ProdSeqNum != 42 {
		t.Errorf("ProdSeqNum = %d, want 42", pdh.ProdSeqNum)
	}
}

// Non-fragmented frames (pshSize 0, transferType 0) and time-sync
// frames carry garbage in the block fields; the codec must zero them.
func TestDecodeProductHeaderZeroesBlockFields(t *testing.T) {
	tests := []struct {
		name    string
		command uint8
		flags   uint8
	}{
		{"transfer type zero", CmdData, 0},
		{"time command", CmdTime, TransferInProg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fh := FrameHeader{Size: FrameHeaderSize, Command: tt.command}
			buf := encodeProductHeader(tt.flags, ProductHeaderMinSize, 9, 100, 42)
			pdh, err := DecodeProductHeader(buf, &fh, MaxFrameSize+FrameHeaderSize)
			if err != nil {
				t.Fatalf("DecodeProductHeader: %v", err)
			}
			if pdh.BlockNum != 0 || pdh.DataBlockOffset != 0 || pdh.DataBlockSize != 0 ||
				pdh.RecsPerBlock != 0 || pdh.BlocksPerRec != 0 {
				t.Fatalf("block fields not zeroed: %+v", pdh)
			}
			if pdh.ProdSeqNum != 42 {
				t.Errorf("ProdSeqNum = %d, want 42", pdh.ProdSeqNum)
			}
		})
	}
}

func TestDecodeProductHeaderErrors(t *testing.T) {
	fh := FrameHeader{Size: FrameHeaderSize, Command: CmdData}
	capacity := MaxFrameSize + FrameHeaderSize

	tests := []struct {
		name   string
		mutate func([]byte)
	}{
		{
			name:   "size below minimum",
			mutate: func(b []byte) { b[0] = 0x12 }, // 8 bytes
		},
		{
			name:   "total size below size",
			mutate: func(b []byte) { binary.BigEndian.PutUint16(b[2:4], ProductHeaderMinSize-4) },
		},
		{
			name:   "total size beyond capacity",
			mutate: func(b []byte) { binary.BigEndian.PutUint16(b[2:4], uint16(capacity)) },
		},
		{
			name:   "declared frame too large",
			mutate: func(b []byte) { binary.BigEndian.PutUint16(b[8:10], MaxFrameSize) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := encodeProductHeader(TransferInProg, ProductHeaderMinSize, 0, 512, 1)
			tt.mutate(buf)
			if _, err := DecodeProductHeader(buf, &fh, capacity); !errors.Is(err, ErrInvalidProductHeader) {
				t.Fatalf("DecodeProductHeader error = %v, want %v", err, ErrInvalidProductHeader)
			}
		})
	}

	if _, err := DecodeProductHeader(make([]byte, ProductHeaderMinSize-1), &fh, capacity); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short window error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}
