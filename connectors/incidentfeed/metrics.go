package incidentfeed

import "github.com/prometheus/client_golang/prometheus"

var (
	incidentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_feed_incidents_total",
		Help: "Incidents accepted from the feed by kind",
	}, []string{"kind"})
	incidentsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rail_feed_incidents_failed",
		Help: "Incidents rejected during validation",
	})
)

// MustRegisterMetrics registers the feed collectors on reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(incidentsTotal, incidentsFailed)
}

func init() {
	MustRegisterMetrics(prometheus.DefaultRegisterer)
}
