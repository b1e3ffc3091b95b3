//go:build darwin

package desktop

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
)

// darwinCapturer shells out to the screencapture CLI (no cgo, no
// CoreGraphics bindings) and decodes the PNG it writes — the same
// exec-first idiom the darwin Input implementation uses.
type darwinCapturer struct{}

func newPlatformCapturer(config CaptureConfig) (ScreenCapturer, error) {
	return &darwinCapturer{}, nil
}

func (c *darwinCapturer) capturePNG() (image.Image, error) {
	f, err := os.CreateTemp("", "lily-capture-*.png")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	// -x: no camera sound, capture full screen non-interactively.
	if err := exec.Command("screencapture", "-x", path).Run(); err != nil {
		return nil, fmt.Errorf("screencapture: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}

func (c *darwinCapturer) Capture() (*image.RGBA, error) {
	img, err := c.capturePNG()
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func (c *darwinCapturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	full, err := c.Capture()
	if err != nil {
		return nil, err
	}
	bounds := image.Rect(x, y, x+width, y+height)
	if !bounds.In(full.Bounds()) {
		return nil, fmt.Errorf("region out of bounds")
	}
	cropped := image.NewRGBA(image.Rect(0, 0, width, height))
	for dy := 0; dy < height; dy++ {
		srcStart := (y+dy)*full.Stride + x*4
		dstStart := dy * cropped.Stride
		copy(cropped.Pix[dstStart:dstStart+width*4], full.Pix[srcStart:srcStart+width*4])
	}
	return cropped, nil
}

func (c *darwinCapturer) GetScreenBounds() (width, height int, err error) {
	img, err := c.Capture()
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (c *darwinCapturer) Close() error { return nil }

var _ ScreenCapturer = (*darwinCapturer)(nil)
