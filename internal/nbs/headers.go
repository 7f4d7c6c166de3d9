package nbs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoSentinel reports that a candidate window does not begin with
	// the 0xFF sentinel byte. It means "keep scanning", not corruption.
	ErrNoSentinel = errors.New("sentinel byte 0xFF not present")

	// ErrInvalidHeader reports a candidate frame-level header that failed
	// size or checksum validation.
	ErrInvalidHeader = errors.New("invalid frame-level header")

	// ErrInvalidProductHeader reports a product-definition header whose
	// declared sizes violate the frame bounds.
	ErrInvalidProductHeader = errors.New("invalid product-definition header")
)

// HeaderChecksum computes the frame-level header checksum: the unsigned
// sum of the first 14 header bytes, modulo 65536.
func HeaderChecksum(buf []byte) uint16 {
	var sum uint32
	for i := 0; i < 14; i++ {
		sum += uint32(buf[i])
	}
	return uint16(sum)
}

// DecodeFrameHeader decodes and validates a 16-byte frame-level header
// from the front of buf. Multi-byte fields are big-endian.
func DecodeFrameHeader(buf []byte) (FrameHeader, error) {
	var fh FrameHeader
	if len(buf) < FrameHeaderSize {
		return fh, io.ErrUnexpectedEOF
	}
	if buf[0] != 0xFF {
		return fh, ErrNoSentinel
	}
	fh.HdlcAddress = buf[0]
	fh.HdlcControl = buf[1]
	fh.Version = buf[2] >> 4
	fh.Size = (buf[2] & 0xF) * 4
	if fh.Size != FrameHeaderSize {
		return fh, fmt.Errorf("%w: header size %d bytes != %d", ErrInvalidHeader, fh.Size, FrameHeaderSize)
	}
	fh.Control = buf[3]
	fh.Command = buf[4]
	fh.Datastream = buf[5]
	fh.Source = buf[6]
	fh.Destination = buf[7]
	fh.SeqNum = binary.BigEndian.Uint32(buf[8:12])
	fh.RunNum = binary.BigEndian.Uint16(buf[12:14])
	fh.Checksum = binary.BigEndian.Uint16(buf[14:16])
	if sum := HeaderChecksum(buf); sum != fh.Checksum {
		return fh, fmt.Errorf("%w: sum %d != checksum %d", ErrInvalidHeader, sum, fh.Checksum)
	}
	return fh, nil
}

// DecodeProductHeader decodes and validates the product-definition
// header that follows fh. capacity is the size of the decoder's scratch
// buffer; declared sizes that cannot fit are rejected, never copied.
func DecodeProductHeader(buf []byte, fh *FrameHeader, capacity int) (ProductDefinitionHeader, error) {
	var pdh ProductDefinitionHeader
	if len(buf) < ProductHeaderMinSize {
		return pdh, io.ErrUnexpectedEOF
	}
	pdh.Version = buf[0] >> 4
	pdh.Size = uint16(buf[0]&0xF) * 4
	pdh.TransferType = buf[1]
	pdh.TotalSize = binary.BigEndian.Uint16(buf[2:4])
	if pdh.Size < ProductHeaderMinSize {
		return pdh, fmt.Errorf("%w: size %d bytes < %d", ErrInvalidProductHeader, pdh.Size, ProductHeaderMinSize)
	}
	if int(fh.Size)+int(pdh.Size) > capacity {
		return pdh, fmt.Errorf("%w: size %d bytes is too large", ErrInvalidProductHeader, pdh.Size)
	}
	if pdh.TotalSize < pdh.Size {
		return pdh, fmt.Errorf("%w: PDH size + PSH size (%d bytes) < PDH size (%d bytes)",
			ErrInvalidProductHeader, pdh.TotalSize, pdh.Size)
	}
	if int(fh.Size)+int(pdh.TotalSize) > capacity {
		return pdh, fmt.Errorf("%w: PDH + PSH size is too large: %d bytes", ErrInvalidProductHeader, pdh.TotalSize)
	}
	pdh.PSHSize = pdh.TotalSize - pdh.Size
	if pdh.PSHSize == 0 && (fh.Command == CmdTime || pdh.TransferType == 0) {
		// Non-fragmented and time-sync frames carry no meaningful
		// block fields; force them to known values.
		pdh.BlockNum = 0
		pdh.DataBlockOffset = 0
		pdh.DataBlockSize = 0
		pdh.RecsPerBlock = 0
		pdh.BlocksPerRec = 0
	} else {
		pdh.BlockNum = binary.BigEndian.Uint16(buf[4:6])
		pdh.DataBlockOffset = binary.BigEndian.Uint16(buf[6:8])
		pdh.DataBlockSize = binary.BigEndian.Uint16(buf[8:10])
		pdh.RecsPerBlock = buf[10]
		pdh.BlocksPerRec = buf[11]
	}
	pdh.ProdSeqNum = binary.BigEndian.Uint32(buf[12:16])
	frameSize := int(fh.Size) + int(pdh.TotalSize) + int(pdh.DataBlockSize)
	if frameSize > MaxFrameSize {
		return pdh, fmt.Errorf("%w: declared frame size is too large: %d bytes", ErrInvalidProductHeader, frameSize)
	}
	return pdh, nil
}
