//go:build windows

package desktop

import (
	"fmt"
	"image"
	"sync"
	"syscall"
	"unsafe"
)

var (
	gdi32 = syscall.NewLazyDLL("gdi32.dll")

	procGetDC            = user32.NewProc("GetDC")
	procReleaseDC        = user32.NewProc("ReleaseDC")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")

	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	smCxScreen   = 0
	smCyScreen   = 1
	srcCopy      = 0x00CC0020
	biRGB        = 0
	dibRGBColors = 0
)

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	BmiHeader bitmapInfoHeader
	BmiColors [1]uint32
}

// gdiCapturer implements ScreenCapturer via GDI BitBlt. No DXGI, no cgo:
// this is the fallback path the teacher's capturer reaches for when DXGI
// isn't available, and it's all this agent needs for a single full-screen
// capture per frame.
type gdiCapturer struct {
	mu sync.Mutex

	screenDC  uintptr
	memDC     uintptr
	hBitmap   uintptr
	oldBitmap uintptr
	bi        bitmapInfo
	width     int
	height    int
	inited    bool
	pixBuf    []byte
}

func newPlatformCapturer(config CaptureConfig) (ScreenCapturer, error) {
	return &gdiCapturer{}, nil
}

func (c *gdiCapturer) ensureHandlesLocked() error {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return fmt.Errorf("GetSystemMetrics returned zero dimensions")
	}
	width, height := int(w), int(h)

	if c.inited && c.width == width && c.height == height {
		return nil
	}
	c.releaseHandlesLocked()

	hdc, _, _ := procGetDC.Call(0)
	if hdc == 0 {
		return fmt.Errorf("GetDC failed")
	}
	memDC, _, _ := procCreateCompatibleDC.Call(hdc)
	if memDC == 0 {
		procReleaseDC.Call(0, hdc)
		return fmt.Errorf("CreateCompatibleDC failed")
	}
	hBitmap, _, _ := procCreateCompatibleBitmap.Call(hdc, uintptr(width), uintptr(height))
	if hBitmap == 0 {
		procDeleteDC.Call(memDC)
		procReleaseDC.Call(0, hdc)
		return fmt.Errorf("CreateCompatibleBitmap failed")
	}
	oldBitmap, _, _ := procSelectObject.Call(memDC, hBitmap)
	if oldBitmap == 0 {
		procDeleteObject.Call(hBitmap)
		procDeleteDC.Call(memDC)
		procReleaseDC.Call(0, hdc)
		return fmt.Errorf("SelectObject failed")
	}

	c.screenDC, c.memDC, c.hBitmap, c.oldBitmap = hdc, memDC, hBitmap, oldBitmap
	c.width, c.height = width, height
	c.inited = true
	c.pixBuf = make([]byte, width*height*4)
	c.bi = bitmapInfo{BmiHeader: bitmapInfoHeader{
		BiSize:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		BiWidth:       int32(width),
		BiHeight:      -int32(height), // negative = top-down
		BiPlanes:      1,
		BiBitCount:    32,
		BiCompression: biRGB,
	}}
	return nil
}

func (c *gdiCapturer) releaseHandlesLocked() {
	if !c.inited {
		return
	}
	if c.oldBitmap != 0 && c.memDC != 0 {
		procSelectObject.Call(c.memDC, c.oldBitmap)
	}
	if c.hBitmap != 0 {
		procDeleteObject.Call(c.hBitmap)
	}
	if c.memDC != 0 {
		procDeleteDC.Call(c.memDC)
	}
	if c.screenDC != 0 {
		procReleaseDC.Call(0, c.screenDC)
	}
	c.inited = false
	c.screenDC, c.memDC, c.hBitmap, c.oldBitmap = 0, 0, 0, 0
}

func (c *gdiCapturer) Capture() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureHandlesLocked(); err != nil {
		return nil, err
	}

	ret, _, _ := procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height), c.screenDC, 0, 0, srcCopy)
	if ret == 0 {
		return nil, fmt.Errorf("BitBlt failed")
	}
	ret, _, _ = procGetDIBits.Call(c.memDC, c.hBitmap, 0, uintptr(c.height),
		uintptr(unsafe.Pointer(&c.pixBuf[0])), uintptr(unsafe.Pointer(&c.bi)), dibRGBColors)
	if ret == 0 {
		return nil, fmt.Errorf("GetDIBits failed")
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	bgraToRGBA(c.pixBuf, img.Pix, c.width*c.height)
	return img, nil
}

func (c *gdiCapturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
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

func (c *gdiCapturer) GetScreenBounds() (width, height int, err error) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("GetSystemMetrics returned zero dimensions")
	}
	return int(w), int(h), nil
}

func (c *gdiCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseHandlesLocked()
	return nil
}

var _ ScreenCapturer = (*gdiCapturer)(nil)
