package decision_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/biomatch/internal/domain/decision"
	"github.com/okian/biomatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPolicy(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := decision.DefaultPolicy()

		Convey("Then the built-in constants are set", func() {
			So(p.ThumbOffset, ShouldEqual, 0.05)
			So(p.StrongEye, ShouldEqual, 0.90)
			So(p.StrongEyeMinThumb, ShouldEqual, 0.60)
			So(p.StrongThumb, ShouldEqual, 0.90)
			So(p.StrongThumbMinEye, ShouldEqual, 0.65)
			So(p.EyeWeight, ShouldEqual, 0.6)
			So(p.ThumbWeight, ShouldEqual, 0.4)
			So(p.HighConfidenceOver, ShouldEqual, 0.85)
			So(p.FailureFloor, ShouldEqual, 0.4)
			So(p.Validate(), ShouldBeNil)
		})

		Convey("When scores sit exactly on the baseline bounds", func() {
			Convey("Then the baseline accepts inclusively", func() {
				So(p.IsMatch(0.6, 0.6, 0.6), ShouldBeTrue)
				So(p.Rule(0.6, 0.6, 0.6), ShouldEqual, decision.RuleBaseline)
				So(p.IsMatch(0.6, 0.56, 0.6), ShouldBeTrue)
			})
		})

		Convey("When the eye score is just under the base", func() {
			Convey("Then nothing accepts", func() {
				So(p.IsMatch(0.59, 0.6, 0.6), ShouldBeFalse)
				So(p.Rule(0.59, 0.6, 0.6), ShouldEqual, decision.RuleNone)
			})
		})

		Convey("When the baseline fails but the eye is very strong", func() {
			Convey("Then the strong eye override accepts", func() {
				So(p.IsMatch(0.91, 0.61, 0.95), ShouldBeTrue)
				So(p.Rule(0.91, 0.61, 0.95), ShouldEqual, decision.RuleStrongEye)
			})

			Convey("But override bounds are strict", func() {
				So(p.IsMatch(0.90, 0.61, 0.95), ShouldBeFalse)
				So(p.IsMatch(0.91, 0.60, 0.95), ShouldBeFalse)
			})
		})

		Convey("When the baseline fails but the thumb is very strong", func() {
			Convey("Then the strong thumb override accepts", func() {
				So(p.Rule(0.66, 0.91, 0.95), ShouldEqual, decision.RuleStrongThumb)
				So(p.IsMatch(0.65, 0.91, 0.95), ShouldBeFalse)
			})
		})

		Convey("When deciding", func() {
			Convey("Then a high total is labelled High", func() {
				v := p.Decide(1, 1, 0.6)
				So(v.Matched, ShouldBeTrue)
				So(v.Total, ShouldAlmostEqual, 1.0, 1e-12)
				So(v.Confidence, ShouldEqual, model.ConfidenceHigh)
			})

			Convey("Then a modest total is labelled Medium", func() {
				v := p.Decide(0.7, 0.7, 0.6)
				So(v.Matched, ShouldBeTrue)
				So(v.Total, ShouldAlmostEqual, 0.7, 1e-12)
				So(v.Confidence, ShouldEqual, model.ConfidenceMedium)
			})

			Convey("Then a rejection carries no confidence but still a total", func() {
				v := p.Decide(0.5, 0.5, 0.6)
				So(v.Matched, ShouldBeFalse)
				So(v.Confidence, ShouldEqual, "")
				So(v.Total, ShouldAlmostEqual, 0.5, 1e-12)
			})
		})

		Convey("When filtering failed attempts", func() {
			So(p.ShouldRecordFailure(0.41), ShouldBeTrue)
			So(p.ShouldRecordFailure(0.4), ShouldBeFalse)
			So(p.ShouldRecordFailure(0), ShouldBeFalse)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a policy with a bound out of range", t, func() {
		p := decision.DefaultPolicy()
		p.StrongEye = 1.2

		Convey("Then validation fails", func() {
			So(errors.Is(p.Validate(), decision.ErrInvalidPolicy), ShouldBeTrue)
		})
	})

	Convey("Given a policy whose weights do not sum to one", t, func() {
		p := decision.DefaultPolicy()
		p.EyeWeight = 0.7

		Convey("Then validation fails", func() {
			So(errors.Is(p.Validate(), decision.ErrInvalidPolicy), ShouldBeTrue)
		})
	})
}

func TestLoadProfile(t *testing.T) {
	Convey("Given calibration profiles on disk", t, func() {
		dir := t.TempDir()
		write := func(name, body string) string {
			path := filepath.Join(dir, name)
			So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
			return path
		}

		Convey("When a profile overrides some keys", func() {
			path := write("strict.toml", "strong_eye = 0.95\nthumb_offset = 0.0\n")
			p, err := decision.LoadProfile(path)

			Convey("Then the overrides apply and the rest keep defaults", func() {
				So(err, ShouldBeNil)
				So(p.StrongEye, ShouldEqual, 0.95)
				So(p.ThumbOffset, ShouldEqual, 0.0)
				So(p.StrongThumbMinEye, ShouldEqual, 0.65)
			})
		})

		Convey("When a profile contains an unknown key", func() {
			path := write("typo.toml", "strong_eyes = 0.95\n")
			_, err := decision.LoadProfile(path)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, decision.ErrUnknownProfileKey), ShouldBeTrue)
			})
		})

		Convey("When a profile sets an invalid weight", func() {
			path := write("bad.toml", "eye_weight = 0.9\n")
			_, err := decision.LoadProfile(path)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, decision.ErrInvalidPolicy), ShouldBeTrue)
			})
		})

		Convey("When the profile does not exist", func() {
			_, err := decision.LoadProfile(filepath.Join(dir, "missing.toml"))
			So(err, ShouldNotBeNil)
		})
	})
}
