package ui

import (
	"encoding/binary"
	"sync"
	"time"
)

// applyPlayerBufferSize sets the audio player's internal buffer to a small size for low latency.
// ~20ms in low-latency (or during fast-forward), ~40ms otherwise.
func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	bufMs := 40
	if a.cfg.AudioLowLatency || a.fast {
		bufMs = 20
	}
	a.audioPlayer.SetBufferSize(time.Duration(bufMs) * time.Millisecond)
}

// sampleQueue hands interleaved stereo frames from the emulation goroutine to
// the audio player goroutine. It is the only state the two share.
type sampleQueue struct {
	mu  sync.Mutex
	buf []int16
	max int // frames
}

func newSampleQueue(maxFrames int) *sampleQueue {
	return &sampleQueue{max: maxFrames, buf: make([]int16, 0, maxFrames*2)}
}

// push appends frames and drops the oldest ones beyond the cap.
func (q *sampleQueue) push(frames []int16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, frames...)
	if over := len(q.buf) - q.max*2; over > 0 {
		q.buf = append(q.buf[:0], q.buf[over:]...)
	}
}

func (q *sampleQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) / 2
}

// pull removes up to max frames.
func (q *sampleQueue) pull(max int) []int16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf) / 2
	if n > max {
		n = max
	}
	out := make([]int16, n*2)
	copy(out, q.buf)
	q.buf = append(q.buf[:0], q.buf[n*2:]...)
	return out
}

func (q *sampleQueue) clear() {
	q.mu.Lock()
	q.buf = q.buf[:0]
	q.mu.Unlock()
}

// apuStream implements io.Reader by pulling frames from the sample queue and
// converting them to 16-bit little-endian stereo.
type apuStream struct {
	q          *sampleQueue
	mono       bool
	lowLatency bool
	// stats
	underruns int
}

func (s *apuStream) Read(p []byte) (int, error) {
	// If buffer is smaller than a full stereo frame (4 bytes), fill with silence to avoid returning 0 bytes.
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	maxReq := len(p) / 4
	capFrames := 2048 // ~42.7ms at 48kHz
	if s.lowLatency {
		capFrames = 1024
	}
	if maxReq > capFrames {
		maxReq = capFrames
	}

	// wait briefly for the emulation side when nothing is buffered
	waitDur := 15 * time.Millisecond
	if s.lowLatency {
		waitDur = 8 * time.Millisecond
	}
	deadline := time.Now().Add(waitDur)
	for s.q.buffered() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	frames := s.q.pull(maxReq)
	if len(frames) == 0 {
		silence := 256
		if silence > maxReq {
			silence = maxReq
		}
		for i := 0; i < silence*4; i++ {
			p[i] = 0
		}
		s.underruns++
		return silence * 4, nil
	}

	i := 0
	for j := 0; j+1 < len(frames); j += 2 {
		l, r := frames[j], frames[j+1]
		if s.mono {
			m := int16((int32(l) + int32(r)) / 2)
			l, r = m, m
		}
		binary.LittleEndian.PutUint16(p[i:], uint16(l))
		binary.LittleEndian.PutUint16(p[i+2:], uint16(r))
		i += 4
	}
	return i, nil
}
