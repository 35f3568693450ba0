package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is the application version, injectable at build time via
// -ldflags.
var Version = "dev"

var (
	appInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketrouter_app_info",
			Help: "Application build information",
		},
		[]string{"version", "go_version"},
	)

	appStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketrouter_app_start_timestamp_seconds",
			Help: "Application start timestamp in seconds",
		},
	)
)

// Init records static application info and start time. Call once at
// startup.
func Init() {
	appInfo.WithLabelValues(Version, runtime.Version()).Set(1)
	appStartTime.Set(float64(time.Now().Unix()))
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
