package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/biomatch/internal/config"
	"github.com/okian/biomatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given BIOMATCH_ environment variables", t, func() {
		t.Setenv("BIOMATCH_ADDR", ":8088")
		t.Setenv("BIOMATCH_QUEUE_SIZE", "1000")
		t.Setenv("BIOMATCH_WORKER_COUNT", "4")
		t.Setenv("BIOMATCH_BASE_THRESHOLD", "0.7")

		convey.Convey("Then configuration should pick them up", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8088")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(cfg.BaseThreshold, convey.ShouldEqual, 0.7)
		})
	})
}

func TestNewApplication(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.BaseThreshold = 0.65

		app, err := newApplication(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		convey.So(app.svc.Start(ctx), convey.ShouldBeNil)
		defer app.close(ctx)

		srv := httptest.NewServer(app.handler)
		defer srv.Close()

		convey.Convey("Then the threshold endpoint reports the configured base", func() {
			resp, err := http.Get(srv.URL + "/settings/threshold")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			var body struct {
				Threshold float64 `json:"threshold"`
			}
			convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)
			convey.So(body.Threshold, convey.ShouldEqual, 0.65)
		})

		convey.Convey("Then metrics and docs are served", func() {
			for _, path := range []string{"/healthz", "/openapi.yaml", "/api-docs"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then an empty gallery lists no identities", func() {
			resp, err := http.Get(srv.URL + "/identities")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			var body struct {
				Count int `json:"count"`
			}
			convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)
			convey.So(body.Count, convey.ShouldEqual, 0)
		})

		convey.Convey("Then service metrics can be refreshed", func() {
			convey.So(func() { updateServiceMetrics(ctx, app) }, convey.ShouldNotPanic)
		})
	})

	convey.Convey("Given a missing policy profile", t, func() {
		cfg := config.New()
		cfg.PolicyProfile = filepath.Join(t.TempDir(), "missing.toml")

		_, err := newApplication(context.Background(), cfg)
		convey.So(err, convey.ShouldNotBeNil)
	})

	convey.Convey("Given a policy profile on disk", t, func() {
		path := filepath.Join(t.TempDir(), "policy.toml")
		convey.So(os.WriteFile(path, []byte("eye_weight = 0.5\nthumb_weight = 0.5\n"), 0o600), convey.ShouldBeNil)
		cfg := config.New()
		cfg.PolicyProfile = path

		app, err := newApplication(context.Background(), cfg)
		convey.So(err, convey.ShouldBeNil)
		app.close(context.Background())
	})

	convey.Convey("Given an invalid provider url", t, func() {
		cfg := config.New()
		cfg.ProviderURL = "not a url"

		_, err := newApplication(context.Background(), cfg)
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop returns once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
