package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impostor_rooms_created_total",
		Help: "Rooms created since process start.",
	})
	RoundsDealt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impostor_rounds_dealt_total",
		Help: "Rounds dealt, including restarts.",
	})
	RoomsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impostor_rooms_swept_total",
		Help: "Expired rooms removed by maintenance sweeps.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
