package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricsEndpoint = "0.0.0.0:9090"
)

var (
	GatewayRequestErrorCount *prometheus.CounterVec

	VCSQueryErrorCount prometheus.Counter

	LayerReconcileCounter *prometheus.CounterVec
)

func init() {
	GatewayRequestErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composer_gateway_request_error_count",
			Help: "A counter metric to measure the total count of failed API gateway requests.",
		},
		[]string{"service", "method"},
	)

	VCSQueryErrorCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "composer_vcs_query_error_count",
			Help: "A counter metric to measure the total count of failed version control ref queries.",
		},
	)

	LayerReconcileCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composer_layer_reconcile_count",
			Help: "A counter metric to measure the sum of configuration layer reconciliations applied.",
		},
		[]string{"state", "changed"},
	)
}

// GatewayRequestError counts one failed request against a gateway backed
// service.
func GatewayRequestError(service, method string) {
	GatewayRequestErrorCount.WithLabelValues(service, method).Inc()
}

// VCSQueryError counts one failed remote ref query.
func VCSQueryError() {
	VCSQueryErrorCount.Inc()
}

// ListenAndServe exposes prometheus metrics as /metrics
func ListenAndServe() {
	go func() {
		http.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              MetricsEndpoint,
			ReadHeaderTimeout: 2 * time.Second,
		}

		if err := server.ListenAndServe(); err != nil {
			log.Println(err)
		}
	}()
}
