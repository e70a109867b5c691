package tts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// readResult is the reader goroutine's single completion message.
type readResult struct {
	audio     []byte
	truncated bool
	lastRead  time.Time
	err       error
}

// engineQuietWindow is how long the engine must have been silent before a
// cut read may leave it running. Output arriving later would be read as the
// start of the next utterance.
const engineQuietWindow = 500 * time.Millisecond

// readOptions bounds one read of engine output.
type readOptions struct {
	deadline time.Time
	idleGap  time.Duration
	limit    int
}

// readGate orders the reader's deadline updates against the caller cutting
// the read short, so a cut is never overwritten by a later deadline.
type readGate struct {
	mu  sync.Mutex
	cut bool
}

// arm sets the next read deadline unless the read was cut.
func (g *readGate) arm(r *os.File, deadline time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cut {
		return false
	}
	_ = r.SetReadDeadline(deadline)
	return true
}

// stop expires the read deadline now.
func (g *readGate) stop(r *os.File) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cut = true
	return r.SetReadDeadline(time.Now())
}

// Pipeline turns one utterance into raw audio using the supervised engine.
type Pipeline struct {
	supervisor *Supervisor
	timeouts   TimeoutConfig
	bufferCap  int
	logger     *log.Logger
}

// NewPipeline creates a pipeline that reads at most bufferCap bytes per
// utterance.
func NewPipeline(supervisor *Supervisor, timeouts TimeoutConfig, bufferCap int, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		supervisor: supervisor,
		timeouts:   timeouts,
		bufferCap:  bufferCap,
		logger:     logger,
	}
}

// Synthesize writes text to the engine and collects its audio. Hitting the
// read wait or the buffer cap is not an error: whatever was read is
// returned. An empty result is ErrNoAudioProduced.
func (p *Pipeline) Synthesize(text string) ([]byte, error) {
	out, err := p.supervisor.Send(text)
	if err != nil {
		return nil, err
	}

	results := make(chan readResult, 1)
	gate := &readGate{}
	go readAudio(out, gate, readOptions{
		deadline: time.Now().Add(p.timeouts.ReadDeadline),
		idleGap:  p.timeouts.IdleGap,
		limit:    p.bufferCap,
	}, results)

	timer := time.NewTimer(p.timeouts.ReadWait)
	defer timer.Stop()

	var res readResult
	cut := false
	select {
	case res = <-results:
	case <-timer.C:
		p.logger.Warn("Audio read wait exceeded, using partial audio", "wait", p.timeouts.ReadWait)
		res = p.cutShort(out, gate, results)
		cut = true
	}

	if (cut || res.truncated || errors.Is(res.err, ErrTimeoutExceeded)) && res.stillWriting() {
		p.logger.Debug("Engine still producing output, restarting it")
		p.supervisor.Interrupt(out)
	}

	if res.truncated {
		p.logger.Warn("Audio data too large, truncating", "limit", p.bufferCap)
	}
	if res.err != nil {
		p.logger.Debug("Audio read ended early", "error", res.err, "bytes", len(res.audio))
	}

	if len(res.audio) == 0 {
		if res.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAudioProduced, res.err)
		}
		return nil, ErrNoAudioProduced
	}
	return res.audio, nil
}

// cutShort forces the reader to return by expiring its deadline. If the
// pipe does not support deadlines the engine is terminated instead, which
// closes the pipe.
func (p *Pipeline) cutShort(out *os.File, gate *readGate, results <-chan readResult) readResult {
	if err := gate.stop(out); err != nil {
		p.supervisor.Interrupt(out)
	}

	timer := time.NewTimer(p.timeouts.GracePeriod)
	defer timer.Stop()

	select {
	case res := <-results:
		return res
	case <-timer.C:
		p.supervisor.Interrupt(out)
		return <-results
	}
}

// stillWriting reports whether the engine may have more output pending for
// an utterance whose read did not reach its natural end.
func (r readResult) stillWriting() bool {
	return len(r.audio) == 0 || time.Since(r.lastRead) < engineQuietWindow
}

// readAudio reads fixed-size chunks from r until EOF, the deadline, an idle
// gap after audio has started, or the buffer cap. It owns the buffer and
// sends exactly one result.
func readAudio(r *os.File, gate *readGate, opts readOptions, results chan<- readResult) {
	buf := NewAudioBuffer(opts.limit)
	chunk := make([]byte, readChunkSize)

	var (
		err      error
		lastRead time.Time
	)
	for !buf.Full() {
		deadline := opts.deadline
		if opts.idleGap > 0 && buf.Len() > 0 {
			if idle := time.Now().Add(opts.idleGap); idle.Before(deadline) {
				deadline = idle
			}
		}
		if !gate.arm(r, deadline) {
			err = ErrTimeoutExceeded
			break
		}

		n, rerr := r.Read(chunk)
		if n > 0 {
			_, _ = buf.Write(chunk[:n])
			lastRead = time.Now()
		}
		if rerr != nil {
			switch {
			case errors.Is(rerr, io.EOF):
				if buf.Len() == 0 {
					err = ErrEngineNotRunning
				}
			case errors.Is(rerr, os.ErrDeadlineExceeded):
				if !(opts.idleGap > 0 && buf.Len() > 0 && time.Now().Before(opts.deadline)) {
					err = ErrTimeoutExceeded
				}
			default:
				err = rerr
			}
			break
		}
		if n == 0 {
			break
		}
	}

	results <- readResult{audio: buf.Bytes(), truncated: buf.Truncated(), lastRead: lastRead, err: err}
}
