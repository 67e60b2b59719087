// Package model contains domain models passed between layers.
package model

// Channels is the number of interleaved color channels in a RawImage.
const Channels = 3

// RawImage is a decoded pixel buffer in BGR channel order, row-major.
// len(Pix) == Height*Width*Channels.
type RawImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRawImage allocates a black image of the given size.
func NewRawImage(width, height int) RawImage {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return RawImage{Width: width, Height: height, Pix: make([]uint8, width*height*Channels)}
}

// Empty reports whether the image has no pixels.
func (m RawImage) Empty() bool {
	return m.Width <= 0 || m.Height <= 0 || len(m.Pix) < m.Width*m.Height*Channels
}

// BGR returns the blue, green and red values at (x, y).
func (m RawImage) BGR(x, y int) (b, g, r uint8) {
	i := (y*m.Width + x) * Channels
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// SetBGR writes the pixel at (x, y).
func (m RawImage) SetBGR(x, y int, b, g, r uint8) {
	i := (y*m.Width + x) * Channels
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = b, g, r
}

// GrayImage is a single channel 8-bit image, row-major.
type GrayImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// Point is a normalized landmark coordinate; X and Y are roughly in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is indexed by canonical face-mesh landmark id.
type LandmarkSet []Point

// Keypoint is a detected fingerprint keypoint. Only the count is used for
// scoring; the geometry is kept for diagnostics.
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float64 `json:"response"`
}
