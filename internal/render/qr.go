package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrOutOfResources marks a render that would exceed the per-ticket memory
// bound; batches hitting it should shrink the image size, not retry.
var ErrOutOfResources = errors.New("qr render exceeds memory bound")

// maxCanvasBytes bounds one ticket image's RGBA buffer (4 bytes per pixel).
const maxCanvasBytes = 64 << 20

// Renderer composites one square QR image plus a label strip beneath it
// printing the ticket reference and sequence number. One image exists at a
// time; callers must not retain the returned bytes across batch items.
type Renderer struct {
	SizePx        int
	LabelHeightPx int
}

func NewRenderer(sizePx, labelHeightPx int) *Renderer {
	return &Renderer{SizePx: sizePx, LabelHeightPx: labelHeightPx}
}

// Render returns the PNG of the composited ticket image.
func (r *Renderer) Render(payload, reference string, sequence int) ([]byte, error) {
	totalHeight := r.SizePx + r.LabelHeightPx
	if r.SizePx <= 0 || totalHeight <= 0 || r.SizePx*totalHeight*4 > maxCanvasBytes {
		return nil, fmt.Errorf("%w: %dx%d canvas", ErrOutOfResources, r.SizePx, totalHeight)
	}

	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	// The label canvas already provides the quiet zone, so the built-in
	// 4-module border would only shrink the modules.
	code.DisableBorder = true

	canvas := image.NewRGBA(image.Rect(0, 0, r.SizePx, totalHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(0, 0, r.SizePx, r.SizePx), code.Image(r.SizePx), image.Point{}, draw.Over)

	drawLabel(canvas, Caption(reference, sequence), r.SizePx, r.SizePx+16)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Caption is the label printed under the QR and repainted by the PDF layout.
func Caption(reference string, sequence int) string {
	return fmt.Sprintf("Ref.:%s, No: %d", reference, sequence)
}

func drawLabel(canvas *image.RGBA, text string, width, baselineY int) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	textWidth := d.MeasureString(text)
	d.Dot = fixed.Point26_6{
		X: (fixed.I(width) - textWidth) / 2,
		Y: fixed.I(baselineY),
	}
	d.DrawString(text)
}
