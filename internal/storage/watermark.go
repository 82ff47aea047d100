package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const (
	bandPadding = 6
	tileSpacing = 140

	// defaultMaxPixels bounds the RGBA canvas at about 160MB
	defaultMaxPixels = 40_000_000
)

var (
	bandColor = color.NRGBA{R: 0, G: 0, B: 0, A: 110}
	textColor = color.NRGBA{R: 255, G: 255, B: 255, A: 230}
	tileColor = color.NRGBA{R: 255, G: 255, B: 255, A: 70}
)

// Watermarker stamps the owner's name onto a photo and re-encodes it as JPEG
type Watermarker struct {
	brand     string
	quality   int
	face      font.Face
	maxPixels int
}

// NewWatermarker creates a watermarker that signs images with brand
func NewWatermarker(brand string) *Watermarker {
	return &Watermarker{brand: brand, quality: 90, face: basicfont.Face7x13, maxPixels: defaultMaxPixels}
}

// Caption is the text stamped on every image of username
func (w *Watermarker) Caption(username string) string {
	return fmt.Sprintf("(c) %s - %s", username, w.brand)
}

// Derive implements services.Deriver
func (w *Watermarker) Derive(src []byte, username string) ([]byte, error) {
	// check the header before decoding so a small file cannot claim a huge canvas
	dims, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if dims.Width <= 0 || dims.Height <= 0 || dims.Width > w.maxPixels/dims.Height {
		return nil, fmt.Errorf("image %dx%d exceeds %d pixels", dims.Width, dims.Height, w.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	caption := w.Caption(username)
	w.tile(dst, caption)
	w.band(dst, caption)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: w.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// band draws the caption on a translucent strip along the bottom edge
func (w *Watermarker) band(dst *image.RGBA, caption string) {
	b := dst.Bounds()
	lineHeight := w.face.Metrics().Height.Ceil()
	strip := image.Rect(b.Min.X, b.Max.Y-lineHeight-2*bandPadding, b.Max.X, b.Max.Y)
	draw.Draw(dst, strip, image.NewUniform(bandColor), image.Point{}, draw.Over)

	width := font.MeasureString(w.face, caption).Ceil()
	x := b.Max.X - width - bandPadding
	if x < b.Min.X+bandPadding {
		x = b.Min.X + bandPadding
	}
	w.drawText(dst, caption, textColor, x, b.Max.Y-bandPadding-w.face.Metrics().Descent.Ceil())
}

// tile repeats the caption faintly across the image so cropping the band is not enough
func (w *Watermarker) tile(dst *image.RGBA, caption string) {
	b := dst.Bounds()
	width := font.MeasureString(w.face, caption).Ceil() + tileSpacing/2
	row := 0
	for y := b.Min.Y + tileSpacing/2; y < b.Max.Y; y += tileSpacing {
		offset := (row % 2) * width / 2
		for x := b.Min.X - offset; x < b.Max.X; x += width {
			w.drawText(dst, caption, tileColor, x, y)
		}
		row++
	}
}

func (w *Watermarker) drawText(dst draw.Image, text string, c color.Color, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: w.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
