package streamer

import (
	"testing"
	"time"

	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
)

type fakeScreen struct {
	width, height int
}

func (f *fakeScreen) Capture(monitorIndex int) ([]byte, int, int, error) {
	buf := make([]byte, f.width*f.height*4)
	return buf, f.width, f.height, nil
}

func newTestStreamer() *Streamer {
	var screen desktop.Screen = &fakeScreen{width: 4, height: 4}
	return New(screen, Config{
		MinFPS: 2, MaxFPS: 10, InitialFPS: 5,
		MinQuality: 30, MaxQuality: 90, InitQual: 70,
		Scale: 1.0,
	})
}

func TestSetTargetFPSClampsToConfiguredBounds(t *testing.T) {
	s := newTestStreamer()
	if got := s.SetTargetFPS(100); got != 10 {
		t.Fatalf("SetTargetFPS(100) = %d, want clamped to 10", got)
	}
	if got := s.SetTargetFPS(0); got != 2 {
		t.Fatalf("SetTargetFPS(0) = %d, want clamped to 2", got)
	}
}

func TestSetQualityClampsToBounds(t *testing.T) {
	s := newTestStreamer()
	if got := s.SetQuality(5); got != 30 {
		t.Fatalf("SetQuality(5) = %d, want floor 30", got)
	}
	if got := s.SetQuality(200); got != 90 {
		t.Fatalf("SetQuality(200) = %d, want ceiling 90", got)
	}
}

func TestCaptureSingleFrameReturnsEncodedFrameAndMetrics(t *testing.T) {
	s := newTestStreamer()
	b64, metrics, err := s.CaptureSingleFrame()
	if err != nil {
		t.Fatalf("CaptureSingleFrame: %v", err)
	}
	if b64 == "" {
		t.Fatal("expected non-empty base64 jpeg")
	}
	if metrics["quality"] != 70 {
		t.Fatalf("metrics[quality] = %v, want 70", metrics["quality"])
	}
	if _, ok := metrics["size_bytes"]; !ok {
		t.Fatal("expected size_bytes in metrics")
	}
}

func TestStartStopIsIdempotentAndInvokesCallback(t *testing.T) {
	s := newTestStreamer()
	s.SetTargetFPS(30) // fastest allowed so the test doesn't wait long

	called := make(chan struct{}, 1)
	s.SetFrameCallback(func(jpegBase64 string, metrics map[string]any) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	s.Start()
	s.Start() // idempotent

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("expected frame callback to fire")
	}

	s.Stop()
	s.Stop() // idempotent
	if s.IsRunning() {
		t.Fatal("expected streamer to be stopped")
	}
}
