package observability

import "net/http"

// Mount registers the health and metrics endpoints on mux.
func Mount(mux *http.ServeMux, hc *HealthChecker) {
	mux.HandleFunc("/health", hc.HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", hc.ReadinessHandler())
	mux.Handle("/metrics", MetricsHandler())
}
