package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/churnboard/churnboard/internal/adapters/mail"
	"github.com/churnboard/churnboard/internal/adapters/repository"
	service "github.com/churnboard/churnboard/internal/app"
	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/internal/domain/intervention"
	"github.com/churnboard/churnboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type gateSender struct {
	mu    sync.Mutex
	sent  int
	gate  chan struct{}
	fails bool
}

func (g *gateSender) Send(ctx context.Context, _ mail.Message) error {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fails {
		return errors.New("relay down")
	}
	g.sent++
	return nil
}

func seededStore(t *testing.T) repository.Store {
	t.Helper()
	store := repository.NewMemoryStore()
	for i, p := range []float64{0.2, 0.9, 0.8, 0.5} {
		c := customer.Customer{
			ID:                int64(i + 1),
			Name:              "Customer",
			Probability:       p,
			SatisfactionScore: i + 1,
			DatasetID:         1,
		}
		if err := store.UpsertCustomer(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service on the memory store", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(10))

		Convey("When it has not been started", func() {
			_, err := svc.ListCustomers(ctx, 0, 10)

			Convey("Then reads fail and stats say so", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Size(), ShouldEqual, 0)
				So(svc.Enqueue(ctx, intervention.NewJob(1, intervention.KindSupport, "")), ShouldBeFalse)
			})
		})

		Convey("When started twice and stopped twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			svc.Stop()
			svc.Stop()

			Convey("Then stats reflect the running state", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["store"], ShouldEqual, "memory")
				So(stats["predictor"], ShouldEqual, "static")
				So(stats["totalCustomers"], ShouldEqual, 0)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When the driver is unknown", func() {
			bad := service.New(service.WithDatabase("mysql", "dsn"))
			err := bad.Start(ctx)
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestServiceReads(t *testing.T) {
	Convey("Given a started service with four customers", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(seededStore(t)), service.WithHighProbThreshold(0.75))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("Then pages, summary and risk ranking come from the store", func() {
			page, err := svc.ListCustomers(ctx, 1, 2)
			So(err, ShouldBeNil)
			So(len(page), ShouldEqual, 2)
			So(page[0].ID, ShouldEqual, 2)

			sum, err := svc.Summary(ctx)
			So(err, ShouldBeNil)
			So(sum.TotalCount, ShouldEqual, 4)
			So(sum.HighProbCount, ShouldEqual, 2)

			top, err := svc.TopRisk(ctx, 2)
			So(err, ShouldBeNil)
			So(top[0].ID, ShouldEqual, 2)
			So(top[1].ID, ShouldEqual, 3)

			_, err = svc.Customer(ctx, 42)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then the static predictor echoes the stored probability", func() {
			p, err := svc.Predict(ctx, customer.Customer{Probability: 0.812345})
			So(err, ShouldBeNil)
			So(p.Probability, ShouldEqual, 0.8123)
			So(p.HighRisk, ShouldBeTrue)
			So(p.Source, ShouldEqual, "static")
		})
	})
}

func TestServiceInterventions(t *testing.T) {
	Convey("Given a started service with a working mailer", t, func() {
		ctx := context.Background()
		sender := &gateSender{}
		svc := service.New(service.WithStore(seededStore(t)), service.WithSender(sender))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a job is accepted", func() {
			j := intervention.NewJob(2, intervention.KindDiscount, "req-1")
			So(svc.SeenAndRecord(ctx, j.Key), ShouldBeFalse)
			So(svc.Enqueue(ctx, j), ShouldBeTrue)

			Convey("Then a status row appears and the key is remembered", func() {
				So(waitFor(func() bool {
					st, _ := svc.Statuses(ctx, 2)
					return len(st) == 1
				}), ShouldBeTrue)
				st, _ := svc.Statuses(ctx, 2)
				So(st[0].Description, ShouldEqual, "Offer a discount of 20% to the user.")
				So(svc.SeenAndRecord(ctx, j.Key), ShouldBeTrue)
				So(svc.Size(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a mailer that fails", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(seededStore(t)), service.WithSender(&gateSender{fails: true}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a job cannot be delivered", func() {
			j := intervention.NewJob(3, intervention.KindSupport, "req-2")
			So(svc.SeenAndRecord(ctx, j.Key), ShouldBeFalse)
			So(svc.Enqueue(ctx, j), ShouldBeTrue)

			Convey("Then its key is released for a retry", func() {
				So(waitFor(func() bool { return svc.Size() == 0 }), ShouldBeTrue)
				st, err := svc.Statuses(ctx, 3)
				So(err, ShouldBeNil)
				So(st, ShouldBeEmpty)
			})
		})
	})

	Convey("Given one blocked worker and a queue of one", t, func() {
		ctx := context.Background()
		sender := &gateSender{gate: make(chan struct{})}
		svc := service.New(
			service.WithStore(seededStore(t)),
			service.WithSender(sender),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			close(sender.gate)
			svc.Stop()
		})

		Convey("When more jobs arrive than fit", func() {
			rejected := 0
			for i := 0; i < 5; i++ {
				if !svc.Enqueue(ctx, intervention.NewJob(1, intervention.KindSupport, "")) {
					rejected++
				}
			}

			Convey("Then the overflow is refused", func() {
				So(rejected, ShouldBeGreaterThan, 0)
			})
		})
	})
}
