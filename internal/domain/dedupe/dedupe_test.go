package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/churnboard/churnboard/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "37:support:req-1")
			second := d.SeenAndRecord(ctx, "37:support:req-1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d.SeenAndRecord(ctx, "k")
			d.Unrecord(ctx, "k")
			d.Unrecord(ctx, "never-recorded")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is over capacity", func() {
			for _, k := range []string{"a", "b", "c"} {
				d.SeenAndRecord(ctx, k)
			}
			// A repeat must not refresh "a".
			d.SeenAndRecord(ctx, "a")
			d.SeenAndRecord(ctx, "d")

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		for _, size := range []int{0, -1} {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(size))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("key-%d", i))
			}

			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "key-0"), ShouldBeTrue)
			d.Unrecord(ctx, "key-0")
			So(d.Size(), ShouldEqual, 999)
		}
	})

	Convey("Given a default deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("Then it starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	Convey("Given many goroutines racing on the same keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("key-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is newly recorded exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
