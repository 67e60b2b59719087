package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/biomatch/internal/adapters/http/api"
	"github.com/okian/biomatch/internal/adapters/repository"
	service "github.com/okian/biomatch/internal/app"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/internal/domain/signature"
	"github.com/okian/biomatch/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type mockDeps struct {
	enrolled   []service.EnrollRequest
	enrollErr  error
	reenrolled map[int64]bool
	verifyReq  service.VerifyRequest
	verify     service.Verification
	verifyErr  error
	attendance []model.Attendance
	lastLimit  int
	threshold  float64
}

func (m *mockDeps) Enroll(_ context.Context, req service.EnrollRequest) (model.Identity, error) {
	if m.enrollErr != nil {
		return model.Identity{}, m.enrollErr
	}
	m.enrolled = append(m.enrolled, req)
	return model.Identity{
		IdentityID:         int64(len(m.enrolled)),
		RegistrationNumber: req.RegistrationNumber,
		Name:               req.Name,
		CreatedAt:          time.Unix(0, 0).UTC(),
	}, nil
}

func (m *mockDeps) Reenroll(_ context.Context, id int64, _, _ model.RawImage) (model.Identity, error) {
	if id > int64(len(m.enrolled)) {
		return model.Identity{}, repository.ErrNotFound
	}
	m.reenrolled[id] = true
	return model.Identity{IdentityID: id, Name: m.enrolled[id-1].Name}, nil
}

func (m *mockDeps) Identities(_ context.Context) ([]model.Identity, error) {
	out := make([]model.Identity, len(m.enrolled))
	for i, e := range m.enrolled {
		out[i] = model.Identity{IdentityID: int64(i + 1), Name: e.Name, RegistrationNumber: e.RegistrationNumber}
	}
	return out, nil
}

func (m *mockDeps) Verify(_ context.Context, req service.VerifyRequest) (service.Verification, error) {
	m.verifyReq = req
	return m.verify, m.verifyErr
}

func (m *mockDeps) Attendance(_ context.Context, limit int) ([]model.Attendance, error) {
	m.lastLimit = limit
	return m.attendance, nil
}

func (m *mockDeps) Threshold(_ context.Context) (float64, error) {
	return m.threshold, nil
}

func (m *mockDeps) SetThreshold(_ context.Context, v float64) error {
	if v < 0 || v > 1 {
		return service.ErrInvalidThreshold
	}
	m.threshold = v
	return nil
}

func pngDataURI(w, h int) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		panic(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func do(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	return v
}

func TestServer(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{reenrolled: map[int64]bool{}, threshold: 0.6}
		mux := http.NewServeMux()
		api.NewServer(deps, api.WithMaxAttendanceLimit(100)).Register(context.Background(), mux)
		eye, thumb := pngDataURI(4, 3), pngDataURI(5, 5)

		Convey("The health endpoint serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("POST /enroll decodes both captures", func() {
			w := do(mux, http.MethodPost, "/enroll", map[string]string{
				"registration_number": "R-1", "name": "Alice", "eye_image": eye, "thumb_image": thumb,
			})
			So(w.Code, ShouldEqual, http.StatusCreated)
			resp := decode[map[string]any](w)
			So(resp["identity_id"], ShouldEqual, 1.0)
			So(resp["message"], ShouldEqual, "Registration successful")
			So(deps.enrolled[0].Eye.Width, ShouldEqual, 4)
			So(deps.enrolled[0].Thumb.Height, ShouldEqual, 5)
		})

		Convey("POST /enroll validates fields", func() {
			w := do(mux, http.MethodPost, "/enroll", map[string]string{"name": "Alice", "eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, "bad_request")

			w = do(mux, http.MethodPost, "/enroll", "{not json")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /enroll maps errors", func() {
			req := map[string]string{"registration_number": "R-1", "name": "A", "eye_image": eye, "thumb_image": thumb}
			cases := []struct {
				err  error
				code int
				kind string
			}{
				{fmt.Errorf("x: %w", repository.ErrAlreadyExists), http.StatusConflict, "already_exists"},
				{fmt.Errorf("eye: %w", signature.ErrNoFaceDetected), http.StatusUnprocessableEntity, "extraction_failed"},
				{fmt.Errorf("thumb: %w", signature.ErrPoorFingerprintQuality), http.StatusUnprocessableEntity, "extraction_failed"},
				{fmt.Errorf("%w: down", signature.ErrProvider), http.StatusBadGateway, "provider_unavailable"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}
			for _, c := range cases {
				deps.enrollErr = c.err
				w := do(mux, http.MethodPost, "/enroll", req)
				So(w.Code, ShouldEqual, c.code)
				So(decode[map[string]string](w)["code"], ShouldEqual, c.kind)
			}
		})

		Convey("Bad images are rejected before reaching the service", func() {
			w := do(mux, http.MethodPost, "/enroll", map[string]string{
				"registration_number": "R-1", "name": "A", "eye_image": "@@@", "thumb_image": thumb,
			})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, "invalid_image")

			w = do(mux, http.MethodPost, "/verify", map[string]string{
				"eye_image": "data:text/plain;base64,aGk=", "thumb_image": thumb,
			})
			So(w.Code, ShouldEqual, http.StatusUnsupportedMediaType)
			So(len(deps.enrolled), ShouldEqual, 0)
		})

		Convey("PUT /identities/{id}/templates replaces templates", func() {
			deps.enrolled = []service.EnrollRequest{{Name: "Alice"}}
			w := do(mux, http.MethodPut, "/identities/1/templates", map[string]string{"eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.reenrolled[1], ShouldBeTrue)

			w = do(mux, http.MethodPut, "/identities/7/templates", map[string]string{"eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusNotFound)

			w = do(mux, http.MethodPut, "/identities/abc/templates", map[string]string{"eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = do(mux, http.MethodPut, "/identities/1/other", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("GET /identities lists identities", func() {
			w := do(mux, http.MethodGet, "/identities", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"identities":[]`)

			deps.enrolled = []service.EnrollRequest{{Name: "Alice"}, {Name: "Bob"}}
			resp := decode[map[string]any](do(mux, http.MethodGet, "/identities", nil))
			So(resp["count"], ShouldEqual, 2.0)
		})

		Convey("POST /verify reports percentages", func() {
			id := int64(3)
			deps.verify = service.Verification{
				MatchResult: model.MatchResult{
					EyeScore: 0.91234, ThumbScore: 0.61, TotalScore: 0.791404,
					Matched: true, BestIdentityID: &id, Confidence: model.ConfidenceMedium, Rule: "strong_eye",
				},
				AttemptID: "a-1",
				Identity:  &model.Identity{IdentityID: 3, Name: "Carol"},
				Recorded:  true,
			}
			w := do(mux, http.MethodPost, "/verify", map[string]string{"attempt_id": "a-1", "eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusOK)
			resp := decode[map[string]any](w)
			So(resp["eye_score"], ShouldEqual, 91.2)
			So(resp["thumb_score"], ShouldEqual, 61.0)
			So(resp["total_score"], ShouldEqual, 79.1)
			So(resp["matched"], ShouldEqual, true)
			So(resp["message"], ShouldEqual, "Attendance marked successfully")
			So(resp["identity"].(map[string]any)["name"], ShouldEqual, "Carol")
			So(deps.verifyReq.AttemptID, ShouldEqual, "a-1")
		})

		Convey("POST /verify returns rejections as 200", func() {
			deps.verify = service.Verification{MatchResult: model.MatchResult{Message: "Biometric extraction failed: eye: no face detected"}}
			w := do(mux, http.MethodPost, "/verify", map[string]string{"eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusOK)
			resp := decode[map[string]any](w)
			So(resp["matched"], ShouldEqual, false)
			So(resp["message"], ShouldStartWith, "Biometric extraction failed")
			So(resp["identity"], ShouldBeNil)
		})

		Convey("POST /verify surfaces store failures", func() {
			deps.verifyErr = errors.New("db down")
			w := do(mux, http.MethodPost, "/verify", map[string]string{"eye_image": eye, "thumb_image": thumb})
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("GET /attendance applies the limit rules", func() {
			idn := int64(1)
			deps.attendance = []model.Attendance{{ID: 1, IdentityID: &idn, EyeScore: 0.5, ThumbScore: 0.12345, Status: model.AttendanceSuccess}}

			w := do(mux, http.MethodGet, "/attendance", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 50)
			recs := decode[[]map[string]any](w)
			So(recs[0]["eye_score"], ShouldEqual, 50.0)
			So(recs[0]["thumb_score"], ShouldEqual, 12.3)

			So(do(mux, http.MethodGet, "/attendance?limit=10", nil).Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 10)
			So(do(mux, http.MethodGet, "/attendance?limit=0", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/attendance?limit=x", nil).Code, ShouldEqual, http.StatusBadRequest)

			w = do(mux, http.MethodGet, "/attendance?limit=101", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("The threshold can be read and written", func() {
			w := do(mux, http.MethodGet, "/settings/threshold", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]float64](w)["threshold"], ShouldEqual, 0.6)

			w = do(mux, http.MethodPut, "/settings/threshold", `{"threshold":0.7}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.threshold, ShouldEqual, 0.7)

			So(do(mux, http.MethodPut, "/settings/threshold", `{"threshold":1.7}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPut, "/settings/threshold", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodDelete, "/settings/threshold", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Wrong methods are not routed", func() {
			So(do(mux, http.MethodGet, "/enroll", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/verify", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/identities", nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestBodyLimit(t *testing.T) {
	Convey("Oversized bodies are rejected", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockDeps{}, api.WithMaxImageBytes(16)).Register(context.Background(), mux)
		huge := `{"eye_image":"` + strings.Repeat("A", 200<<10) + `"}`
		w := do(mux, http.MethodPost, "/verify", huge)
		So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("A panicking handler is answered with 500", t, func() {
		h := api.MetricsMiddleware(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}, "test")
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		So(w.Code, ShouldEqual, http.StatusInternalServerError)
		So(w.Body.String(), ShouldContainSubstring, "internal_error")
	})

	Convey("The handler status passes through", t, func() {
		h := api.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}, "test")
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		So(w.Code, ShouldEqual, http.StatusTeapot)
	})
}
