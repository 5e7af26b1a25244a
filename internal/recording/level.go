package recording

import (
	"time"
)

// LevelMonitor derives a normalized loudness signal from live PCM frames for
// UI feedback. Purely computational; it stops publishing when the frame
// channel closes.
type LevelMonitor struct {
	levels   chan float64
	interval time.Duration
}

// NewLevelMonitor creates a monitor publishing at roughly animation-frame
// cadence.
func NewLevelMonitor() *LevelMonitor {
	return &LevelMonitor{
		levels:   make(chan float64, 4),
		interval: 33 * time.Millisecond,
	}
}

// Levels returns the normalized [0,1] loudness signal.
func (m *LevelMonitor) Levels() <-chan float64 { return m.levels }

// Run consumes frames until the channel closes. Publication is throttled and
// best-effort; a slow reader never blocks the capture loop.
func (m *LevelMonitor) Run(frameCh <-chan Frame) {
	defer close(m.levels)

	var lastPublish time.Time
	for frame := range frameCh {
		if time.Since(lastPublish) < m.interval {
			continue
		}
		lastPublish = time.Now()

		select {
		case m.levels <- Level(frame.Data):
		default:
		}
	}
}

// Level computes the normalized loudness of one s16le PCM frame: the average
// 8-bit sample magnitude scaled by min(1, avg/128).
func Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var sum float64
	samples := len(pcm) / 2
	for i := 0; i < samples; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		mag := int32(s)
		if mag < 0 {
			mag = -mag
		}
		// scale 16-bit magnitude down to the 0..128 range
		sum += float64(mag) / 256
	}

	avg := sum / float64(samples)
	level := avg / 128
	if level > 1 {
		level = 1
	}
	return level
}
