package metric

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/presence"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections on this instance",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_users",
		Help: "Users in the online set",
	})
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_received_total",
		Help: "Inbound websocket events by type",
	}, []string{"event"})
	EventsRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_rate_limited_total",
		Help: "Inbound frames discarded by the per-connection rate limiter",
	})
	DeliveriesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_deliveries_dropped_total",
		Help: "Outbound frames dropped because the connection buffer was full or closed",
	})
	PersistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_persistence_failures_total",
		Help: "Store writes that failed while handling an event",
	})
	HandlerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_handler_panics_total",
		Help: "Recovered panics in event handlers",
	})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			Connections,
			OnlineUsers,
			EventsReceived,
			EventsRateLimited,
			DeliveriesDropped,
			PersistenceFailures,
			HandlerPanics,
		)
	})
}

// WatchOnline keeps the OnlineUsers gauge in step with the set until ctx ends.
func WatchOnline(ctx context.Context, set presence.OnlineSet, log *zap.SugaredLogger) {
	changes, cancel := set.Subscribe()
	defer cancel()

	refresh := func() {
		ids, err := set.List(ctx)
		if err != nil {
			log.Warnw("online gauge refresh failed", "error", err)
			return
		}
		OnlineUsers.Set(float64(len(ids)))
	}
	refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			refresh()
		}
	}
}
