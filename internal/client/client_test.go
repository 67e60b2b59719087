package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClient(t *testing.T) {
	Convey("Given a fake API", t, func() {
		var lastMethod, lastPath string
		var lastBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastMethod, lastPath = r.Method, r.URL.RequestURI()
			lastBody = nil
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/enroll":
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"identity_id":1,"name":"Alice","message":"Registration successful"}`))
			case "/identities/2/templates":
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"code":"not_found","message":"identity 2: not found"}`))
			case "/identities":
				_, _ = w.Write([]byte(`{"identities":[{"identity_id":1},{"identity_id":2}],"count":2}`))
			case "/verify":
				_, _ = w.Write([]byte(`{"attempt_id":"a","matched":true,"total_score":97.5,"identity":{"identity_id":1}}`))
			case "/attendance":
				_, _ = w.Write([]byte(`[{"id":3,"status":"failed"}]`))
			case "/healthz":
				_, _ = w.Write([]byte("# metrics"))
			case "/settings/threshold":
				_, _ = w.Write([]byte(`{"threshold":0.6}`))
			default:
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream down"))
			}
		}))
		defer srv.Close()

		c, err := New(srv.URL + "/")
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Enroll posts the captures", func() {
			id, err := c.Enroll(ctx, "R-1", "Alice", "e", "t")
			So(err, ShouldBeNil)
			So(id.IdentityID, ShouldEqual, int64(1))
			So(lastMethod, ShouldEqual, http.MethodPost)
			So(lastBody["registration_number"], ShouldEqual, "R-1")
		})

		Convey("API errors are decoded", func() {
			_, err := c.Reenroll(ctx, 2, "e", "t")
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusNotFound)
			So(apiErr.Code, ShouldEqual, "not_found")
			So(errors.Is(err, ErrAPI), ShouldBeTrue)
			So(lastMethod, ShouldEqual, http.MethodPut)
		})

		Convey("Non JSON errors keep the raw body", func() {
			err := c.do(ctx, http.MethodGet, "/nowhere", nil, nil)
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Message, ShouldEqual, "upstream down")
		})

		Convey("Reads decode their payloads", func() {
			ids, err := c.Identities(ctx)
			So(err, ShouldBeNil)
			So(len(ids), ShouldEqual, 2)

			v, err := c.Verify(ctx, "a", "e", "t")
			So(err, ShouldBeNil)
			So(v.Matched, ShouldBeTrue)
			So(v.Identity.IdentityID, ShouldEqual, int64(1))

			recs, err := c.Attendance(ctx, 5)
			So(err, ShouldBeNil)
			So(lastPath, ShouldEqual, "/attendance?limit=5")
			So(recs[0].Status, ShouldEqual, "failed")

			th, err := c.Threshold(ctx)
			So(err, ShouldBeNil)
			So(th, ShouldEqual, 0.6)
		})

		Convey("Health accepts a 200", func() {
			So(c.Health(ctx), ShouldBeNil)
		})

		Convey("SetThreshold sends the value", func() {
			So(c.SetThreshold(ctx, 0.8), ShouldBeNil)
			So(lastMethod, ShouldEqual, http.MethodPut)
			So(lastBody["threshold"], ShouldEqual, 0.8)
		})
	})

	Convey("Bad base URLs are rejected", t, func() {
		_, err := New("localhost")
		So(err, ShouldNotBeNil)
	})
}
