package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/biomatch/internal/domain/model"
)

func pngBytes(w, h int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestDecoder(t *testing.T) {
	Convey("Given a decoder", t, func() {
		d := NewDecoder()
		red := color.NRGBA{R: 200, G: 100, B: 10, A: 255}

		Convey("A png decodes into BGR order", func() {
			img, err := d.Decode(pngBytes(3, 2, red))
			So(err, ShouldBeNil)
			So(img.Width, ShouldEqual, 3)
			So(img.Height, ShouldEqual, 2)
			b, g, r := img.BGR(2, 1)
			So(b, ShouldEqual, uint8(10))
			So(g, ShouldEqual, uint8(100))
			So(r, ShouldEqual, uint8(200))
		})

		Convey("A data URI prefix is stripped", func() {
			s := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(4, 4, red))
			img, err := d.DecodeString(s)
			So(err, ShouldBeNil)
			So(img.Width, ShouldEqual, 4)
		})

		Convey("Raw base64 without padding is accepted", func() {
			s := base64.RawStdEncoding.EncodeToString(pngBytes(2, 2, red))
			img, err := d.DecodeString(s)
			So(err, ShouldBeNil)
			So(img.Height, ShouldEqual, 2)
		})

		Convey("A plain PGM is read through netpbm", func() {
			img, err := d.Decode([]byte("P2\n2 1\n255\n0 255\n"))
			So(err, ShouldBeNil)
			So(img.Width, ShouldEqual, 2)
			b, g, r := img.BGR(1, 0)
			So([]uint8{b, g, r}, ShouldResemble, []uint8{255, 255, 255})
			b, _, _ = img.BGR(0, 0)
			So(b, ShouldEqual, uint8(0))
		})

		Convey("Encoded PPM decodes back to the same pixels", func() {
			src := model.NewRawImage(3, 3)
			src.SetBGR(1, 2, 7, 8, 9)
			data, err := EncodePPM(src)
			So(err, ShouldBeNil)
			So(string(data[:2]), ShouldEqual, "P6")
			back, err := d.Decode(data)
			So(err, ShouldBeNil)
			So(back.Pix, ShouldResemble, src.Pix)
		})

		Convey("Encoded PGM keeps the header and size", func() {
			gray := model.GrayImage{Width: 2, Height: 2, Pix: []uint8{0, 64, 128, 255}}
			data, err := EncodePGM(gray)
			So(err, ShouldBeNil)
			So(string(data[:2]), ShouldEqual, "P5")
			back, err := d.Decode(data)
			So(err, ShouldBeNil)
			_, g, _ := back.BGR(0, 1)
			So(g, ShouldEqual, uint8(128))
		})

		Convey("Bad input is classified", func() {
			_, err := d.DecodeString("   ")
			So(err, ShouldEqual, ErrEmptyInput)

			_, err = d.DecodeString("!!not base64!!")
			So(errors.Is(err, ErrInvalidBase64), ShouldBeTrue)

			_, err = d.DecodeString("data:text/plain;base64,aGVsbG8=")
			So(errors.Is(err, ErrUnsupportedFormat), ShouldBeTrue)

			_, err = d.DecodeString("data:image/png;base64")
			So(errors.Is(err, ErrInvalidBase64), ShouldBeTrue)

			_, err = d.Decode([]byte("definitely not an image"))
			So(err, ShouldEqual, ErrUnsupportedFormat)

			_, err = EncodePPM(model.RawImage{})
			So(err, ShouldEqual, ErrInvalidImage)
		})

		Convey("Size limits are enforced", func() {
			small := NewDecoder(WithMaxBytes(16))
			_, err := small.Decode(pngBytes(8, 8, red))
			So(err, ShouldEqual, ErrImageTooLarge)

			_, err = small.DecodeString(base64.StdEncoding.EncodeToString(pngBytes(8, 8, red)))
			So(err, ShouldEqual, ErrImageTooLarge)

			few := NewDecoder(WithMaxPixels(10))
			_, err = few.Decode(pngBytes(4, 4, red))
			So(err, ShouldEqual, ErrImageTooLarge)
		})

		Convey("A netpbm header is checked before its raster is read", func() {
			few := NewDecoder(WithMaxPixels(1000))
			_, err := few.Decode([]byte("P5\n60000 60000\n255\nabcd"))
			So(err, ShouldEqual, ErrImageTooLarge)

			_, err = few.Decode([]byte("P6\n40 40\n255\nab"))
			So(err, ShouldEqual, ErrImageTooLarge)

			_, err = few.Decode([]byte("P2\n2 1\n255\n0 255\n"))
			So(err, ShouldBeNil)
		})
	})
}

func TestToGray(t *testing.T) {
	Convey("ToGray shares the pixel buffer", t, func() {
		g := model.GrayImage{Width: 2, Height: 1, Pix: []uint8{3, 4}}
		img := ToGray(g)
		So(img.GrayAt(1, 0).Y, ShouldEqual, uint8(4))
		So(img.Bounds().Dx(), ShouldEqual, 2)
	})
}
