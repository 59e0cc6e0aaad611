// Package metrics exports vpcd session activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gregLibert/vsmartcard/pkg/vpcd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "vpicc"

// Recorder turns session events into metrics. One Recorder can observe any
// number of concurrent sessions.
type Recorder struct {
	sessionsOpened prometheus.Counter
	sessionsActive prometheus.Gauge
	sessionsClosed *prometheus.CounterVec
	commands       *prometheus.CounterVec
	protocolErrors prometheus.Counter
	stateErrors    *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "opened_total",
			Help:      "Sessions started with vpcd.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently running.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Sessions ended, by reason.",
		}, []string{"reason"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Commands handled by the card, by kind.",
		}, []string{"kind"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "protocol_errors_total",
			Help:      "Frames that could not be decoded.",
		}),
		stateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state_errors_total",
			Help:      "Commands refused because the card was powered off, by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		r.sessionsOpened, r.sessionsActive, r.sessionsClosed,
		r.commands, r.protocolErrors, r.stateErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SessionStarted counts a new session. Its end is counted by the
// EventTerminated event the session emits.
func (r *Recorder) SessionStarted() {
	r.sessionsOpened.Inc()
	r.sessionsActive.Inc()
}

// Observe is a vpcd event handler.
func (r *Recorder) Observe(ev vpcd.Event) {
	switch ev.Kind {
	case vpcd.EventCommand:
		r.commands.WithLabelValues(ev.Command.Kind.String()).Inc()
	case vpcd.EventProtocolError:
		r.protocolErrors.Inc()
	case vpcd.EventStateError:
		r.stateErrors.WithLabelValues(ev.Command.Kind.String()).Inc()
	case vpcd.EventTerminated:
		r.sessionsActive.Dec()
		r.sessionsClosed.WithLabelValues(closeReason(ev.Err)).Inc()
	}
}

// Option installs Observe as the session event handler.
func (r *Recorder) Option() vpcd.Option {
	return vpcd.WithEventHandler(r.Observe)
}

// WrapFactory counts a session start each time newCard is called, which
// vpcd.Serve does once per accepted connection.
func (r *Recorder) WrapFactory(newCard func() vpcd.Card) func() vpcd.Card {
	return func() vpcd.Card {
		r.SessionStarted()
		return newCard()
	}
}

func closeReason(err error) string {
	var protoErr *vpcd.ProtocolError
	switch {
	case err == nil, errors.Is(err, vpcd.ErrClosed):
		return "closed"
	case errors.As(err, &protoErr):
		return "protocol_error"
	default:
		return "connection_error"
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	})
	defer stop()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
