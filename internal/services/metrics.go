package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tradeOps counts trade ledger operations by operation and outcome
	tradeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photo_trade_trade_operations_total",
		Help: "Trade ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// friendOps counts friendship graph mutations by operation and outcome
	friendOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photo_trade_friend_operations_total",
		Help: "Friendship graph operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// notifications counts fan-out deliveries per live channel
	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photo_trade_notifications_total",
		Help: "Realtime notifications by event and result",
	}, []string{"event", "result"})

	wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photo_trade_ws_sessions",
		Help: "Live websocket sessions on this instance",
	})
)

// outcome labels an operation result by error kind
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	kind := KindOf(err)
	for _, k := range []error{ErrNotFound, ErrConflict, ErrUnauthorized, ErrValidation, ErrDependency} {
		if errors.Is(kind, k) {
			return k.Error()
		}
	}
	return ErrStorage.Error()
}
