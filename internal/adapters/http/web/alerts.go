package web

import (
	"context"
	"fmt"
	"sync"

	"github.com/churnboard/churnboard/pkg/fetch"
)

type alertsKey struct{}

// alerts collects the failures of one page render.
type alerts struct {
	mu       sync.Mutex
	messages []string
}

func withAlerts(ctx context.Context) (context.Context, *alerts) {
	a := &alerts{}
	return context.WithValue(ctx, alertsKey{}, a), a
}

func (a *alerts) add(msg string) {
	a.mu.Lock()
	a.messages = append(a.messages, msg)
	a.mu.Unlock()
}

func (a *alerts) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

// notify is the fetch.Notifier of the web runner: every failed request
// becomes a banner on the page being rendered.
func notify(ctx context.Context, f *fetch.Failure) {
	a, ok := ctx.Value(alertsKey{}).(*alerts)
	if !ok {
		return
	}
	a.add(alertMessage(f))
}

func alertMessage(f *fetch.Failure) string {
	switch f.Kind {
	case fetch.KindStatus:
		return fmt.Sprintf("Could not load %s: the server answered %d.", f.URL, f.StatusCode)
	case fetch.KindDecode:
		return fmt.Sprintf("Could not load %s: the response was not understood.", f.URL)
	default:
		return fmt.Sprintf("Could not load %s: the request failed.", f.URL)
	}
}
