package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/biomatch/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, int64(0))
			})
		})

		Convey("When recording attempts", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then a new id is not seen and a replay is", func() {
				So(d.SeenAndRecord(ctx, "attempt-1"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "attempt-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, int64(1))
			})

			Convey("And an unrecorded id may be recorded again", func() {
				So(d.SeenAndRecord(ctx, "attempt-2"), ShouldBeFalse)
				d.Unrecord(ctx, "attempt-2")
				So(d.Size(), ShouldEqual, int64(0))
				So(d.SeenAndRecord(ctx, "attempt-2"), ShouldBeFalse)
			})

			Convey("And unrecording an unknown id is a no-op", func() {
				d.Unrecord(ctx, "never-seen")
				So(d.Size(), ShouldEqual, int64(0))
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("a-%d", i))
			}

			Convey("Then the oldest id is evicted first", func() {
				So(d.Size(), ShouldEqual, int64(3))
				So(d.SeenAndRecord(ctx, "a-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a-1"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("u-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, int64(1000))
				So(d.SeenAndRecord(ctx, "u-0"), ShouldBeTrue)
			})
		})

		Convey("When many goroutines race on the same id", func() {
			d := dedupe.NewInMemoryDeduper()
			var fresh atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "shared") {
						fresh.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one of them records it", func() {
				So(fresh.Load(), ShouldEqual, int32(1))
			})
		})
	})
}
