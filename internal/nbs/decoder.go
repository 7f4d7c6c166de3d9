package nbs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"example.com/nbsgate/internal/common"
)

// decodeState enumerates the frame decoder's resynchronization states.
type decodeState uint8

const (
	stateStart            decodeState = iota // ensure a header's worth of bytes
	stateSynchronizing                       // scanning for the sentinel byte
	stateSentinelSeen                        // buffer starts with a sentinel byte
	stateDataFHSeen                          // data-transfer frame-level header decoded
	stateTimeFHSeen                          // time-command frame-level header decoded
	stateOtherFHSeen                         // unknown-command frame-level header decoded
	statePDHSeen                             // product-definition header decoded
	stateNextSentinelSeen                    // candidate next header located
	stateNextFHSeen                          // next header vetted; previous frame emitted
)

// FrameDecoder locates, validates, and emits NBS frames from a raw byte
// stream, resynchronizing past corruption one byte at a time. A decoder
// owns its input source and must not be shared across goroutines.
type FrameDecoder struct {
	win      *scratch
	state    decodeState
	fh       FrameHeader
	pdh      ProductDefinitionHeader
	nextFH   int  // candidate next-header offset while skipping an unknown frame
	consumed int  // bytes of the previously emitted frame, discarded on the next call
	offset   int64 // stream offset of the most recently emitted frame
	logError bool  // log the next resynchronization episode?

	metrics *common.Metrics
}

// NewFrameDecoder returns a decoder reading from src. The scratch buffer
// holds one maximum-size frame plus one frame-level header so that a
// trailing header can be vetted without overwriting the current frame.
func NewFrameDecoder(src io.Reader) *FrameDecoder {
	return &FrameDecoder{
		win:      newScratch(src, MaxFrameSize+FrameHeaderSize),
		state:    stateStart,
		nextFH:   -1,
		logError: true,
	}
}

// SetMetrics attaches a metrics recorder to the decoder.
func (d *FrameDecoder) SetMetrics(m *common.Metrics) {
	d.metrics = m
}

// Offset returns the stream offset of the most recently emitted frame.
func (d *FrameDecoder) Offset() int64 {
	return d.offset
}

// noteResync records an invalid candidate header. Only the first episode
// after a good frame is logged so sustained line noise cannot flood the
// log.
func (d *FrameDecoder) noteResync(err error) {
	if d.metrics != nil {
		d.metrics.IncResync()
	}
	if d.logError {
		common.Logf("resynchronizing: %v", err)
		d.logError = false
	}
}

// Next returns the next complete, validated frame. The returned slice
// aliases the decoder's scratch buffer and is valid only until the next
// call. pdh is non-nil only for data-transfer frames. io.EOF reports a
// clean end of input; any other error is terminal for this source.
func (d *FrameDecoder) Next() ([]byte, *FrameHeader, *ProductDefinitionHeader, error) {
	for {
		switch d.state {
		case stateStart:
			d.nextFH = -1
			if d.consumed > 0 {
				d.win.compact(d.consumed)
				d.consumed = 0
			}
			if err := d.win.ensure(FrameHeaderSize); err != nil {
				return nil, nil, nil, err
			}
			d.state = stateSynchronizing

		case stateSynchronizing:
			i := bytes.IndexByte(d.win.bytes(), 0xFF)
			if i < 0 {
				d.win.reset()
				d.state = stateStart
				break
			}
			d.win.compact(i)
			d.state = stateSentinelSeen

		case stateSentinelSeen:
			if err := d.win.ensure(FrameHeaderSize); err != nil {
				return nil, nil, nil, err
			}
			fh, err := DecodeFrameHeader(d.win.bytes()[:FrameHeaderSize])
			if err != nil {
				d.noteResync(err)
				// Overwrite the sentinel so the scan resumes one
				// byte further on.
				d.win.buf[0] = 0
				d.state = stateSynchronizing
				break
			}
			d.fh = fh
			switch fh.Command {
			case CmdData:
				d.state = stateDataFHSeen
			case CmdTime:
				d.state = stateTimeFHSeen
			default:
				d.nextFH = int(fh.Size)
				d.state = stateOtherFHSeen
			}

		case stateDataFHSeen:
			if err := d.win.ensure(int(d.fh.Size) + ProductHeaderMinSize); err != nil {
				return nil, nil, nil, err
			}
			pdh, err := DecodeProductHeader(d.win.bytes()[d.fh.Size:], &d.fh, len(d.win.buf))
			if err != nil {
				d.noteResync(err)
				d.win.buf[0] = 0
				d.state = stateSynchronizing
				break
			}
			d.pdh = pdh
			d.state = statePDHSeen

		case statePDHSeen:
			need := int(d.fh.Size) + int(d.pdh.TotalSize) + int(d.pdh.DataBlockSize)
			// ensure can't report io.ErrShortBuffer here: the PDH was
			// vetted against the scratch capacity.
			if err := d.win.ensure(need); err != nil {
				return nil, nil, nil, err
			}
			return d.emit(need), &d.fh, &d.pdh, nil

		case stateTimeFHSeen:
			need := int(d.fh.Size) + TimeHeaderSize
			if err := d.win.ensure(need); err != nil {
				return nil, nil, nil, err
			}
			size := binary.BigEndian.Uint16(d.win.bytes()[int(d.fh.Size)+2:])
			if size != TimeHeaderSize {
				d.noteResync(fmt.Errorf("%w: time-command header size %d bytes != %d",
					ErrInvalidHeader, size, TimeHeaderSize))
				d.win.buf[0] = 0
				d.state = stateSynchronizing
				break
			}
			return d.emit(need), &d.fh, nil, nil

		case stateOtherFHSeen:
			// The command is unknown, so the frame's length is too.
			// Skip forward to the next vettable header.
			for {
				i := bytes.IndexByte(d.win.bytes()[d.nextFH:], 0xFF)
				if i >= 0 {
					d.nextFH += i
					d.state = stateNextSentinelSeen
					break
				}
				d.nextFH = d.win.end
				err := d.win.ensure(d.win.end + FrameHeaderSize)
				if errors.Is(err, io.ErrShortBuffer) {
					// No next header within a frame's reach; give up
					// on this fragment.
					d.win.reset()
					d.state = stateStart
					break
				}
				if err != nil {
					return nil, nil, nil, err
				}
			}

		case stateNextSentinelSeen:
			err := d.win.ensure(d.nextFH + FrameHeaderSize)
			if errors.Is(err, io.ErrShortBuffer) {
				d.win.reset()
				d.state = stateStart
				break
			}
			if err != nil {
				return nil, nil, nil, err
			}
			if _, verr := DecodeFrameHeader(d.win.bytes()[d.nextFH : d.nextFH+FrameHeaderSize]); verr != nil {
				d.nextFH++
				d.state = stateOtherFHSeen
				break
			}
			// The next header is genuine: everything before it is the
			// opaque unknown-command frame.
			frame := d.win.bytes()[:d.nextFH]
			d.offset = d.win.base
			d.logError = true
			d.state = stateNextFHSeen
			if d.metrics != nil {
				d.metrics.AddFrame(int64(len(frame)))
			}
			return frame, &d.fh, nil, nil

		case stateNextFHSeen:
			d.win.compact(d.nextFH)
			d.nextFH = -1
			d.state = stateSentinelSeen

		default:
			common.Fatalf("invalid decoder state: %d", d.state)
		}
	}
}

// emit hands out the frame occupying the first need buffered bytes. The
// frame stays valid until the next call, which discards it and keeps any
// already-read suffix.
func (d *FrameDecoder) emit(need int) []byte {
	frame := d.win.bytes()[:need]
	d.offset = d.win.base
	d.consumed = need
	d.logError = true
	d.state = stateStart
	if d.metrics != nil {
		d.metrics.AddFrame(int64(need))
	}
	return frame
}
