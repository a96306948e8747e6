package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EngageCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twooter_engage_cycles_total",
		Help: "Total engagement loop cycles",
	})
	EngageCycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twooter_engage_cycle_errors_total",
		Help: "Total engagement cycles that hit a discovery error",
	})
	EngageCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "twooter_engage_cycle_duration_seconds",
		Help:    "Engagement cycle duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	Actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twooter_actions_total",
		Help: "Engagement actions by kind and outcome",
	}, []string{"kind", "outcome"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twooter_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"path"})
	AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twooter_auth_attempts_total",
		Help: "Authentication strategy attempts by outcome",
	}, []string{"strategy", "outcome"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twooter_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twooter_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(EngageCycles, EngageCycleErrors, EngageCycleDuration,
		Actions, APIRetries, AuthAttempts, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveCycleDuration records one engagement cycle duration.
func ObserveCycleDuration(start time.Time) {
	EngageCycleDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for a path.
func IncAPIRetry(path string) { APIRetries.WithLabelValues(path).Inc() }

// IncAction counts one action attempt outcome (applied, already_done, denied, failed).
func IncAction(kind, outcome string) { Actions.WithLabelValues(kind, outcome).Inc() }

// IncAuthAttempt counts one strategy attempt (ok or failed).
func IncAuthAttempt(strategy, outcome string) { AuthAttempts.WithLabelValues(strategy, outcome).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
