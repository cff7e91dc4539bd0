package supervisor

import (
	"log/slog"

	"github.com/mattjoyce/kolibrid/internal/bus"
	"github.com/mattjoyce/kolibrid/internal/log"
	"github.com/mattjoyce/kolibrid/internal/state"
)

// eventAdapter bridges the webapp's lifecycle bus to shared context
// mutations. Its handlers run on webapp goroutines; the context's own mutex
// makes the mutations safe against the command loop.
type eventAdapter struct {
	svc    Service
	shared *state.Context
	logger *slog.Logger
}

// attachEventAdapter subscribes the three lifecycle events at construction
// time. There is no detach; the adapter lives as long as the worker.
func attachEventAdapter(svc Service, shared *state.Context) *eventAdapter {
	a := &eventAdapter{
		svc:    svc,
		shared: shared,
		logger: log.WithComponent("events"),
	}
	b := svc.Bus()
	b.Subscribe(bus.KindServing, a.serving)
	b.Subscribe(bus.KindZipServing, a.zipServing)
	b.Subscribe(bus.KindStop, a.stopped)
	return a
}

func (a *eventAdapter) serving(ev bus.Event) {
	baseURL, external := a.svc.ResolveURLs(ev.Port)
	a.shared.SetServing(baseURL)
	a.logger.Info("webapp serving", "port", ev.Port, "base_url", baseURL, "external_urls", external)
}

func (a *eventAdapter) zipServing(ev bus.Event) {
	extraURL, _ := a.svc.ResolveURLs(ev.Port)
	a.shared.SetExtraServing(extraURL)
	a.logger.Info("zip content serving", "port", ev.Port, "url", extraURL)
}

func (a *eventAdapter) stopped(bus.Event) {
	a.shared.SetStopped()
	a.logger.Info("webapp stopped")
}
