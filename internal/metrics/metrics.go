// Package metrics exposes Prometheus counters for session activity.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"live-quiz-service/internal/domain"
)

const namespace = "live_quiz"

type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	playersJoined   prometheus.Counter
	transitions     *prometheus.CounterVec
	answers         prometheus.Counter
	timerFires      *prometheus.CounterVec
	exports         *prometheus.CounterVec
}

// New registers the service counters plus Go runtime collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Quiz sessions started.",
		}),
		playersJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_joined_total",
			Help:      "Players that joined a session.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Committed session state transitions.",
		}, []string{"from", "to"}),
		answers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_submitted_total",
			Help:      "Accepted answer submissions.",
		}),
		timerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_fires_total",
			Help:      "Round timer callbacks by kind and whether they changed the session.",
		}, []string{"kind", "applied"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_exported_total",
			Help:      "Result exports by format.",
		}, []string{"format"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsStarted,
		m.playersJoined,
		m.transitions,
		m.answers,
		m.timerFires,
		m.exports,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionStarted() { m.sessionsStarted.Inc() }

func (m *Metrics) PlayerJoined() { m.playersJoined.Inc() }

func (m *Metrics) Transition(from, to domain.State) {
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) AnswerSubmitted() { m.answers.Inc() }

func (m *Metrics) TimerFired(kind string, applied bool) {
	m.timerFires.WithLabelValues(kind, strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) ResultsExported(format string) { m.exports.WithLabelValues(format).Inc() }
