package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type sidecar struct {
	landmarks func(w http.ResponseWriter, req landmarksRequest)
	keypoints func(w http.ResponseWriter, req keypointsRequest)
}

func (s *sidecar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case landmarksPath:
		var req landmarksRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.landmarks(w, req)
	case keypointsPath:
		var req keypointsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.keypoints(w, req)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	Convey("Base URLs are validated", t, func() {
		_, err := New("not a url")
		So(errors.Is(err, ErrBadBaseURL), ShouldBeTrue)

		c, err := New("http://localhost:8500/")
		So(err, ShouldBeNil)
		So(c.base, ShouldEqual, "http://localhost:8500")
	})
}

func TestClient(t *testing.T) {
	Convey("Given a sidecar", t, func() {
		sc := &sidecar{}
		srv := httptest.NewServer(sc)
		defer srv.Close()

		c, err := New(srv.URL, WithTimeout(2*time.Second))
		So(err, ShouldBeNil)
		ctx := context.Background()
		face := model.NewRawImage(4, 4)
		gray := model.GrayImage{Width: 2, Height: 2, Pix: []uint8{0, 1, 2, 3}}

		Convey("Landmarks sends a PPM payload and returns the mesh", func() {
			var got string
			sc.landmarks = func(w http.ResponseWriter, req landmarksRequest) {
				raw, _ := base64.StdEncoding.DecodeString(req.Image)
				got = string(raw[:2])
				writeJSON(w, http.StatusOK, landmarksResponse{Found: true, Landmarks: []model.Point{{X: 0.1, Y: 0.2}, {X: 0.3}}})
			}
			lms, found, err := c.Landmarks(ctx, face)
			So(err, ShouldBeNil)
			So(found, ShouldBeTrue)
			So(got, ShouldEqual, "P6")
			So(len(lms), ShouldEqual, 2)
			So(lms[0].Y, ShouldEqual, 0.2)
		})

		Convey("No face is not an error", func() {
			sc.landmarks = func(w http.ResponseWriter, _ landmarksRequest) {
				writeJSON(w, http.StatusOK, landmarksResponse{})
			}
			lms, found, err := c.Landmarks(ctx, face)
			So(err, ShouldBeNil)
			So(found, ShouldBeFalse)
			So(lms, ShouldBeNil)
		})

		Convey("Keypoints forwards the cap and decodes descriptors", func() {
			var gotMax int
			sc.keypoints = func(w http.ResponseWriter, req keypointsRequest) {
				gotMax = req.MaxCount
				writeJSON(w, http.StatusOK, keypointsResponse{
					Keypoints:   []model.Keypoint{{X: 1}, {X: 2}},
					Descriptors: [][]byte{{1, 2}, {3, 4}},
				})
			}
			kps, desc, err := c.Keypoints(ctx, gray, 500)
			So(err, ShouldBeNil)
			So(gotMax, ShouldEqual, 500)
			So(len(kps), ShouldEqual, 2)
			So(desc[1], ShouldResemble, []byte{3, 4})
		})

		Convey("Missing descriptors come back nil", func() {
			sc.keypoints = func(w http.ResponseWriter, _ keypointsRequest) {
				writeJSON(w, http.StatusOK, map[string]any{"keypoints": []model.Keypoint{{X: 1}}, "descriptors": nil})
			}
			kps, desc, err := c.Keypoints(ctx, gray, 10)
			So(err, ShouldBeNil)
			So(len(kps), ShouldEqual, 1)
			So(desc, ShouldBeNil)
		})

		Convey("Mismatched descriptor counts are rejected", func() {
			sc.keypoints = func(w http.ResponseWriter, _ keypointsRequest) {
				writeJSON(w, http.StatusOK, keypointsResponse{Keypoints: []model.Keypoint{{}, {}}, Descriptors: [][]byte{{1}}})
			}
			_, _, err := c.Keypoints(ctx, gray, 10)
			So(errors.Is(err, ErrBadResponse), ShouldBeTrue)
		})

		Convey("Server errors map to ErrUnavailable with the reason", func() {
			sc.landmarks = func(w http.ResponseWriter, _ landmarksRequest) {
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "model loading"})
			}
			_, _, err := c.Landmarks(ctx, face)
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "model loading")
		})

		Convey("Client errors map to ErrRequestFailed", func() {
			sc.keypoints = func(w http.ResponseWriter, _ keypointsRequest) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad image"})
			}
			_, _, err := c.Keypoints(ctx, gray, 10)
			So(errors.Is(err, ErrRequestFailed), ShouldBeTrue)
		})

		Convey("Garbage bodies map to ErrBadResponse", func() {
			sc.landmarks = func(w http.ResponseWriter, _ landmarksRequest) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("{"))
			}
			_, _, err := c.Landmarks(ctx, face)
			So(errors.Is(err, ErrBadResponse), ShouldBeTrue)
		})

		Convey("Slow sidecars hit the timeout", func() {
			slow, err := New(srv.URL, WithTimeout(20*time.Millisecond))
			So(err, ShouldBeNil)
			sc.landmarks = func(w http.ResponseWriter, _ landmarksRequest) {
				time.Sleep(200 * time.Millisecond)
				writeJSON(w, http.StatusOK, landmarksResponse{})
			}
			_, _, err = slow.Landmarks(ctx, face)
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
		})

		Convey("Empty images never reach the sidecar", func() {
			_, _, err := c.Landmarks(ctx, model.RawImage{})
			So(err, ShouldNotBeNil)
		})
	})
}
