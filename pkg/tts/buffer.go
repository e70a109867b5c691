package tts

// readChunkSize is the size of each read from the engine output.
const readChunkSize = 4096

// AudioBuffer accumulates raw audio for one utterance up to a fixed cap.
// Bytes past the cap are dropped, so a truncated buffer always holds
// exactly the first cap bytes.
type AudioBuffer struct {
	data      []byte
	limit     int
	truncated bool
}

// NewAudioBuffer creates a buffer that holds at most limit bytes.
func NewAudioBuffer(limit int) *AudioBuffer {
	if limit <= 0 {
		limit = DefaultBufferCap
	}
	return &AudioBuffer{
		data:  make([]byte, 0, min(limit, 64*1024)),
		limit: limit,
	}
}

// Write appends p up to the cap. It returns ErrBufferFull when some of p
// did not fit.
func (b *AudioBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.data)
	if len(p) <= room {
		b.data = append(b.data, p...)
		return len(p), nil
	}
	b.data = append(b.data, p[:room]...)
	b.truncated = true
	return room, ErrBufferFull
}

// Len returns the number of buffered bytes.
func (b *AudioBuffer) Len() int { return len(b.data) }

// Full reports whether the cap has been reached.
func (b *AudioBuffer) Full() bool { return len(b.data) >= b.limit }

// Truncated reports whether any bytes were dropped.
func (b *AudioBuffer) Truncated() bool { return b.truncated }

// Bytes returns the buffered audio.
func (b *AudioBuffer) Bytes() []byte { return b.data }
