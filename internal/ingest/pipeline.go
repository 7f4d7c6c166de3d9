package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"example.com/nbsgate/internal/common"
	"example.com/nbsgate/internal/frames"
	"example.com/nbsgate/internal/nbs"
)

// Source is one feed connection delivering raw NBS bytes.
type Source struct {
	Name   string
	Reader io.Reader
}

// Options configures a Pipeline.
type Options struct {
	// MaxFrames bounds the reordering buffer.
	MaxFrames int
	// Timeout is how long a buffered frame waits for a missing
	// predecessor before being released anyway.
	Timeout time.Duration
	// Metrics optionally records decode and buffer counters.
	Metrics *common.Metrics
}

// Pipeline decodes frames from one or more sources, orders the
// data-transfer frames through a shared reordering buffer, and hands the
// ordered stream to a single consumer. Time-command and unknown-command
// frames carry no product sequencing and are counted but not forwarded.
type Pipeline struct {
	buffer  *frames.Buffer
	tracker *frames.UplinkTracker
	metrics *common.Metrics
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		buffer:  frames.NewBuffer(opts.MaxFrames, opts.Timeout),
		tracker: &frames.UplinkTracker{},
		metrics: opts.Metrics,
	}
	if opts.Metrics != nil {
		p.buffer.SetMetrics(opts.Metrics)
	}
	return p
}

// Buffer exposes the pipeline's reordering buffer.
func (p *Pipeline) Buffer() *frames.Buffer {
	return p.buffer
}

// Run decodes every source until EOF, delivering ordered frames to
// handle on the calling goroutine. It returns the first producer or
// handler error; clean EOF on all sources is not an error.
func (p *Pipeline) Run(sources []Source, handle func(frames.Frame) error) error {
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	record := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			if err := p.ingest(src); err != nil {
				record(fmt.Errorf("source %s: %w", src.Name, err))
			}
		}(src)
	}
	go func() {
		wg.Wait()
		p.buffer.Close()
	}()

	for {
		frame, err := p.buffer.TakeOldest()
		if errors.Is(err, frames.ErrClosed) {
			break
		}
		if err := handle(frame); err != nil {
			p.buffer.Close()
			record(fmt.Errorf("deliver frame: %w", err))
			break
		}
	}

	wg.Wait()
	errMu.Lock()
	defer errMu.Unlock()
	return firstErr
}

// ingest runs one source's decode loop, inserting data-transfer frames
// into the shared buffer.
func (p *Pipeline) ingest(src Source) error {
	decoder := nbs.NewFrameDecoder(src.Reader)
	if p.metrics != nil {
		decoder.SetMetrics(p.metrics)
	}
	for {
		frame, fh, pdh, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if pdh == nil {
			// Time-sync and unknown frames: accounted for by the
			// decoder, nothing to order.
			continue
		}
		key := frames.NewKey(fh, pdh, p.tracker.EpochFor(fh.Source))
		switch err := p.buffer.Insert(key, frame); {
		case err == nil:
		case errors.Is(err, frames.ErrLate),
			errors.Is(err, frames.ErrDuplicate),
			errors.Is(err, frames.ErrFull):
			// Counted, recoverable drops.
		case errors.Is(err, frames.ErrClosed):
			return nil
		default:
			return err
		}
	}
}
