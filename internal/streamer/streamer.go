// Package streamer implements the Frame Streamer: a paced screen-capture
// loop that JPEG-encodes frames at an adaptively chosen quality and fans
// them out to subscribers.
package streamer

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/Bazza1982/lily-remote/internal/logging"
	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
)

var log = logging.L("streamer")

const (
	hardMinFPS = 1
	hardMaxFPS = 30

	fallingBehindFactor = 1.5
)

// FrameCallback is the single fan-out sink for encoded frames.
type FrameCallback func(jpegBase64 string, metrics map[string]any)

// Config seeds the streamer's tunables; all fields have spec-mandated
// defaults supplied by the caller (internal/config).
type Config struct {
	MinFPS, MaxFPS, InitialFPS       int
	MinQuality, MaxQuality, InitQual int
	Scale                            float64
	MonitorIndex                     int
}

// Streamer owns the capture loop, the adaptive-quality controller, and the
// current target FPS/quality.
type Streamer struct {
	screen desktop.Screen

	mu            sync.Mutex
	targetFPS     int
	minFPS, maxFPS int
	monitorIndex  int
	scale         float64
	callback      FrameCallback

	quality *adaptiveQuality

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Streamer bound to the given Screen capturer.
func New(screen desktop.Screen, cfg Config) *Streamer {
	fps := clamp(cfg.InitialFPS, hardMinFPS, hardMaxFPS)
	s := &Streamer{
		screen:       screen,
		targetFPS:    fps,
		minFPS:       clamp(cfg.MinFPS, hardMinFPS, hardMaxFPS),
		maxFPS:       clamp(cfg.MaxFPS, hardMinFPS, hardMaxFPS),
		monitorIndex: cfg.MonitorIndex,
		scale:        cfg.Scale,
		quality:      newAdaptiveQualityController(cfg.InitQual, cfg.MinQuality, cfg.MaxQuality),
	}
	if s.scale <= 0 {
		s.scale = 1.0
	}
	return s
}

// SetFrameCallback registers the single fan-out sink for encoded frames.
func (s *Streamer) SetFrameCallback(cb FrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// SetTargetFPS clamps and applies a new target frame rate.
func (s *Streamer) SetTargetFPS(fps int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := s.minFPS, s.maxFPS
	if lo < hardMinFPS {
		lo = hardMinFPS
	}
	if hi > hardMaxFPS {
		hi = hardMaxFPS
	}
	s.targetFPS = clamp(fps, lo, hi)
	return s.targetFPS
}

// SetQuality overrides the adaptive quality controller's current value,
// clamped to the configured bounds. Adaptation resumes on the next frame.
func (s *Streamer) SetQuality(q int) int {
	s.quality.SetQuality(q)
	return s.quality.Quality()
}

// Start spawns the capture loop. Idempotent.
func (s *Streamer) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.captureLoop(s.stopCh, s.doneCh)
	log.Info("streamer started")
}

// Stop cancels and joins the capture loop. Idempotent.
func (s *Streamer) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.runMu.Unlock()

	close(stopCh)
	<-doneCh
	log.Info("streamer stopped")
}

func (s *Streamer) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

func (s *Streamer) captureLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		start := time.Now()

		s.mu.Lock()
		fps := s.targetFPS
		cb := s.callback
		s.mu.Unlock()

		interval := time.Second / time.Duration(fps)

		jpegB64, metrics, err := s.captureOne()
		if err != nil {
			log.Warn("capture failed", "error", err)
		} else if cb != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Warn("frame callback panicked", "panic", r)
					}
				}()
				cb(jpegB64, metrics)
			}()
		}

		elapsed := time.Since(start)
		if elapsed > time.Duration(float64(interval)*fallingBehindFactor) {
			log.Warn("capture loop falling behind", "elapsed", elapsed, "interval", interval)
		}

		sleep := interval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-stopCh:
			return
		case <-time.After(sleep):
		}
	}
}

// CaptureSingleFrame performs an on-demand one-shot capture, independent of
// the running loop.
func (s *Streamer) CaptureSingleFrame() (string, map[string]any, error) {
	return s.captureOne()
}

func (s *Streamer) captureOne() (string, map[string]any, error) {
	s.mu.Lock()
	monitorIndex := s.monitorIndex
	scale := s.scale
	fps := s.targetFPS
	s.mu.Unlock()

	interval := time.Second / time.Duration(fps)
	quality := s.quality.Quality()

	captureStart := time.Now()
	bgra, width, height, err := s.screen.Capture(monitorIndex)
	if err != nil {
		return "", nil, err
	}
	captureMs := time.Since(captureStart).Milliseconds()

	encodeStart := time.Now()
	rgba := desktop.BGRAToRGBA(bgra, width, height)
	if scale > 0 && scale < 1.0 {
		rgba = desktop.ScaleImageFast(rgba, scale)
	}
	jpegBytes, err := desktop.EncodeJPEG(rgba, quality)
	if err != nil {
		return "", nil, err
	}
	encodeMs := time.Since(encodeStart).Milliseconds()

	s.quality.RecordFrame(len(jpegBytes), interval)

	metrics := map[string]any{
		"capture_ms": captureMs,
		"encode_ms":  encodeMs,
		"size_bytes": len(jpegBytes),
		"quality":    quality,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	return base64.StdEncoding.EncodeToString(jpegBytes), metrics, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
