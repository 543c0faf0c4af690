package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/iamwavecut/ngwarden"

var (
	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngwarden_violations_total",
			Help: "Classified violations by kind",
		},
		[]string{"kind"},
	)

	enforcementActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngwarden_enforcement_actions_total",
			Help: "Enforcement actions dispatched to the gateway",
		},
		[]string{"action", "status"},
	)

	reportResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngwarden_report_resolutions_total",
			Help: "Report resolution attempts by outcome",
		},
		[]string{"outcome", "status"},
	)

	accessTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngwarden_access_transitions_total",
			Help: "Chat access state changes",
		},
		[]string{"state", "status"},
	)

	ledgerRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngwarden_ledger_retries_total",
			Help: "Score ledger retries caused by write contention",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		violationsTotal,
		enforcementActionsTotal,
		reportResolutionsTotal,
		accessTransitionsTotal,
		ledgerRetriesTotal,
	)
}

// Init installs the tracer provider and, when addr is set, serves /metrics.
// The returned function flushes the tracer provider and stops the server.
func Init(ctx context.Context, addr string) (func(context.Context) error, error) {
	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	var srv *http.Server
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	return func(ctx context.Context) error {
		var err error
		if srv != nil {
			err = srv.Shutdown(ctx)
		}
		return errors.Join(err, tp.Shutdown(ctx))
	}, nil
}

func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

func RecordViolation(kind string) {
	violationsTotal.WithLabelValues(kind).Inc()
}

func RecordEnforcement(action string, err error) {
	enforcementActionsTotal.WithLabelValues(action, status(err)).Inc()
}

func RecordReportResolution(outcome string, err error) {
	reportResolutionsTotal.WithLabelValues(outcome, status(err)).Inc()
}

func RecordAccessTransition(state string, err error) {
	accessTransitionsTotal.WithLabelValues(state, status(err)).Inc()
}

func RecordLedgerRetry(backend string) {
	ledgerRetriesTotal.WithLabelValues(backend).Inc()
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
