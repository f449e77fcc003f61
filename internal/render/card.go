// Package render assembles scene cards and narration into a vertical video.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	background = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	foreground = color.White
)

type faceSpec struct {
	ttf  []byte
	size float64
}

var captionFaces = map[string]faceSpec{
	"bold-large": {gobold.TTF, 72},
	"minimal":    {goregular.TTF, 56},
	"italic":     {goitalic.TTF, 60},
}

// CardStyle is the geometry shared by every card of a render.
type CardStyle struct {
	Width     int
	Height    int
	WrapWidth int
}

// Painter draws text cards. Faces are parsed once and reused.
type Painter struct {
	style CardStyle

	mu    sync.Mutex
	faces map[string]font.Face
}

// NewPainter creates a card painter.
func NewPainter(style CardStyle) *Painter {
	if style.Width <= 0 {
		style.Width = 1080
	}
	if style.Height <= 0 {
		style.Height = 1920
	}
	if style.WrapWidth <= 0 {
		style.WrapWidth = 30
	}
	return &Painter{style: style, faces: make(map[string]font.Face)}
}

func (p *Painter) face(caption string) (font.Face, error) {
	cf, ok := captionFaces[caption]
	if !ok {
		caption = "minimal"
		cf = captionFaces[caption]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.faces[caption]; ok {
		return f, nil
	}
	parsed, err := opentype.Parse(cf.ttf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s font: %w", caption, err)
	}
	f, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    cf.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s face: %w", caption, err)
	}
	p.faces[caption] = f
	return f, nil
}

// Lines wraps text to the card's column width.
func (p *Painter) Lines(text string) []string {
	wrapped := wordwrap.String(strings.TrimSpace(text), p.style.WrapWidth)
	var lines []string
	for _, l := range strings.Split(wrapped, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Paint draws text centered on a card and encodes it as PNG to w.
func (p *Painter) Paint(w io.Writer, text, caption string) error {
	face, err := p.face(caption)
	if err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, p.style.Width, p.style.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	lines := p.Lines(text)
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil() + 10
	y := (p.style.Height-len(lines)*lineHeight)/2 + metrics.Ascent.Ceil()

	d := &font.Drawer{Dst: img, Src: image.NewUniform(foreground), Face: face}
	for _, line := range lines {
		x := (p.style.Width - d.MeasureString(line).Ceil()) / 2
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
		y += lineHeight
	}
	return png.Encode(w, img)
}
