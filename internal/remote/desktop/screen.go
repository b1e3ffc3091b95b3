package desktop

import "image"

// capturerScreen adapts the platform ScreenCapturer (image.RGBA output) onto
// the Screen capability (raw BGRA bytes) the frame streamer consumes.
type capturerScreen struct {
	capturer ScreenCapturer
}

// NewScreen creates the platform Screen capability for the given monitor.
func NewScreen(monitorIndex int) (Screen, error) {
	cfg := DefaultConfig()
	cfg.DisplayIndex = monitorIndex
	capturer, err := NewScreenCapturer(cfg)
	if err != nil {
		return nil, err
	}
	return &capturerScreen{capturer: capturer}, nil
}

// Capture grabs a frame from the display passed to NewScreen; the
// monitorIndex argument is not used.
func (s *capturerScreen) Capture(monitorIndex int) ([]byte, int, int, error) {
	img, err := s.capturer.Capture()
	if err != nil {
		return nil, 0, 0, err
	}
	return rgbaToBGRA(img), img.Bounds().Dx(), img.Bounds().Dy(), nil
}

func rgbaToBGRA(img *image.RGBA) []byte {
	out := make([]byte, len(img.Pix))
	for i := 0; i+3 < len(img.Pix); i += 4 {
		out[i] = img.Pix[i+2]   // B
		out[i+1] = img.Pix[i+1] // G
		out[i+2] = img.Pix[i]   // R
		out[i+3] = img.Pix[i+3] // A
	}
	return out
}
