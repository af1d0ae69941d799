// Package intake normalizes donor photos before they are sent to the
// vision model: anything larger than the bounding box is scaled down,
// aspect ratio preserved, and re-encoded as JPEG.
package intake

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 800
	DefaultQuality      = 60
)

// Options bound the output image.
type Options struct {
	MaxDimension int
	Quality      int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Result is the payload handed to the classifier.
type Result struct {
	Data       []byte
	MIMEType   string
	Width      int
	Height     int
	Compressed bool
	// FallbackReason is set when the original bytes are passed through.
	FallbackReason string
}

// DataURI renders the preview form the UI displays.
func (r Result) DataURI() string {
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// IsImage reports whether contentType names an image/* media type.
func IsImage(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.ToLower(contentType))
	}
	return strings.HasPrefix(mt, "image/")
}

// Compress returns ok=false for non-image content types and leaves the
// input untouched. Decoding or encoding failures fall back to the original
// bytes with Compressed=false; there is no retry.
func Compress(data []byte, contentType string, opts Options) (Result, bool) {
	if !IsImage(contentType) {
		return Result{}, false
	}
	opts = opts.withDefaults()
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	fallback := func(reason string) (Result, bool) {
		return Result{Data: data, MIMEType: mt, FallbackReason: reason}, true
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fallback(fmt.Sprintf("decode: %v", err))
	}
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), opts.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; flatten onto white like a canvas export does.
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return fallback(fmt.Sprintf("encode: %v", err))
	}
	return Result{Data: buf.Bytes(), MIMEType: "image/jpeg", Width: w, Height: h, Compressed: true}, true
}

// Fit scales w×h into a limit×limit box without upscaling.
func Fit(w, h, limit int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := int(float64(h)*float64(limit)/float64(w) + 0.5)
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := int(float64(w)*float64(limit)/float64(h) + 0.5)
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
