// Package imaging converts transport payloads into pixel buffers and back.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/spakin/netpbm"

	"github.com/okian/biomatch/internal/domain/model"
)

// DefaultMaxBytes bounds a decoded payload.
const DefaultMaxBytes = 10 << 20

// DefaultMaxPixels bounds the decoded image area.
const DefaultMaxPixels = 40_000_000

var dataURITypes = []string{"image/jpeg", "image/png", "image/gif", "image/x-portable"}

// Decoder turns encoded captures into RawImage values.
type Decoder struct {
	maxBytes  int
	maxPixels int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxBytes sets the largest accepted decoded payload. Non-positive values keep the default.
func WithMaxBytes(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithMaxPixels sets the largest accepted width*height.
func WithMaxPixels(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPixels = n
		}
	}
}

// NewDecoder returns a Decoder with the given options applied.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxBytes: DefaultMaxBytes, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeString accepts raw base64 or a data URI such as "data:image/png;base64,...".
func (d *Decoder) DecodeString(s string) (model.RawImage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.RawImage{}, ErrEmptyInput
	}
	if strings.HasPrefix(s, "data:") {
		meta, payload, ok := strings.Cut(s, ",")
		if !ok {
			return model.RawImage{}, fmt.Errorf("%w: missing data URI payload", ErrInvalidBase64)
		}
		if !supportedMeta(meta) {
			return model.RawImage{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.TrimPrefix(meta, "data:"))
		}
		s = payload
	}
	// Encoded length is 4/3 of the payload; reject before allocating.
	if base64.StdEncoding.DecodedLen(len(s)) > d.maxBytes+2 {
		return model.RawImage{}, ErrImageTooLarge
	}
	raw, err := decodeBase64(s)
	if err != nil {
		return model.RawImage{}, err
	}
	return d.Decode(raw)
}

// Decode reads jpeg, png, gif or netpbm bytes.
func (d *Decoder) Decode(data []byte) (model.RawImage, error) {
	if len(data) == 0 {
		return model.RawImage{}, ErrEmptyInput
	}
	if len(data) > d.maxBytes {
		return model.RawImage{}, ErrImageTooLarge
	}

	var (
		img image.Image
		err error
	)
	if isNetpbm(data) {
		cfg, cerr := netpbm.DecodeConfig(bytes.NewReader(data))
		if cerr != nil {
			return model.RawImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, cerr)
		}
		if d.tooManyPixels(cfg) {
			return model.RawImage{}, ErrImageTooLarge
		}
		img, err = netpbm.Decode(bytes.NewReader(data), nil)
		if err != nil {
			return model.RawImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	} else {
		cfg, _, cerr := image.DecodeConfig(bytes.NewReader(data))
		if cerr != nil {
			if errors.Is(cerr, image.ErrFormat) {
				return model.RawImage{}, ErrUnsupportedFormat
			}
			return model.RawImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, cerr)
		}
		if d.tooManyPixels(cfg) {
			return model.RawImage{}, ErrImageTooLarge
		}
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return model.RawImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}

	b := img.Bounds()
	if b.Dx()*b.Dy() > d.maxPixels {
		return model.RawImage{}, ErrImageTooLarge
	}
	if b.Empty() {
		return model.RawImage{}, ErrInvalidImage
	}
	return FromImage(img), nil
}

// tooManyPixels checks header dimensions before any raster is allocated.
func (d *Decoder) tooManyPixels(cfg image.Config) bool {
	return int64(cfg.Width)*int64(cfg.Height) > int64(d.maxPixels)
}

// FromImage copies any image.Image into a BGR buffer.
func FromImage(img image.Image) model.RawImage {
	b := img.Bounds()
	out := model.NewRawImage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.SetBGR(x, y, c.B, c.G, c.R)
		}
	}
	return out
}

// ToNRGBA is the inverse of FromImage.
func ToNRGBA(img model.RawImage) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	if img.Empty() {
		return out
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			bl, g, r := img.BGR(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: bl, A: 0xff})
		}
	}
	return out
}

// ToGray wraps a GrayImage as an image.Gray without copying.
func ToGray(img model.GrayImage) *image.Gray {
	return &image.Gray{Pix: img.Pix, Stride: img.Width, Rect: image.Rect(0, 0, img.Width, img.Height)}
}

// EncodePPM writes a binary P6 rendition of img.
func EncodePPM(img model.RawImage) ([]byte, error) {
	if img.Empty() {
		return nil, ErrInvalidImage
	}
	var buf bytes.Buffer
	if err := netpbm.Encode(&buf, ToNRGBA(img), &netpbm.EncodeOptions{Format: netpbm.PPM, MaxValue: 255}); err != nil {
		return nil, fmt.Errorf("encode ppm: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePGM writes a binary P5 rendition of img.
func EncodePGM(img model.GrayImage) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 || len(img.Pix) < img.Width*img.Height {
		return nil, ErrInvalidImage
	}
	var buf bytes.Buffer
	if err := netpbm.Encode(&buf, ToGray(img), &netpbm.EncodeOptions{Format: netpbm.PGM, MaxValue: 255}); err != nil {
		return nil, fmt.Errorf("encode pgm: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return raw, nil
	}
	// Browsers occasionally drop the padding.
	if raw, rerr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rerr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
}

func supportedMeta(meta string) bool {
	for _, t := range dataURITypes {
		if strings.Contains(meta, t) {
			return true
		}
	}
	return false
}

func isNetpbm(data []byte) bool {
	return len(data) >= 2 && data[0] == 'P' && data[1] >= '1' && data[1] <= '7'
}
