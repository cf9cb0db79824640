package metrics

import (
	"strconv"
	"time"

	"plainid/internal/analysis"
	"plainid/internal/store"
)

// Metrics holds the series recorded by the analysing commands.
type Metrics struct {
	registry *Registry

	ChallengesAccepted *Counter
	ChallengesRejected *Counter
	RunErrors          *Counter
	ReloadsApplied     *Counter
	ReloadsRejected    *Counter

	RunDuration *Histogram
	RunStdDev   *Histogram

	LastRunTimestamp *Gauge
	UptimeSeconds    *Gauge

	started time.Time
}

// New registers the plainid metrics in registry. A nil registry gets a fresh
// one under the "plainid" namespace.
func New(registry *Registry) *Metrics {
	if registry == nil {
		registry = NewRegistry("plainid")
	}

	return &Metrics{
		registry: registry,

		ChallengesAccepted: registry.Counter(
			"challenges_total",
			"Challenge files picked up from the inbox",
			Labels{"status": "accepted"},
		),
		ChallengesRejected: registry.Counter(
			"challenges_total",
			"Challenge files picked up from the inbox",
			Labels{"status": "rejected"},
		),
		RunErrors: registry.Counter(
			"run_errors_total",
			"Analysis runs that failed before producing a result",
			nil,
		),
		ReloadsApplied: registry.Counter(
			"config_reloads_total",
			"Configuration reloads",
			Labels{"status": "applied"},
		),
		ReloadsRejected: registry.Counter(
			"config_reloads_total",
			"Configuration reloads",
			Labels{"status": "rejected"},
		),
		RunDuration: registry.Histogram(
			"run_duration_seconds",
			"Time spent identifying one ciphertext",
			nil,
			DurationBuckets,
		),
		RunStdDev: registry.Histogram(
			"run_stddev",
			"Trend standard deviation of the accepted comparison",
			nil,
			StdDevBuckets,
		),
		LastRunTimestamp: registry.Gauge(
			"last_run_timestamp_seconds",
			"Unix time of the last finished run",
			nil,
		),
		UptimeSeconds: registry.Gauge(
			"uptime_seconds",
			"Seconds since the metrics were created",
			nil,
		),
		started: time.Now(),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *Registry {
	return m.registry
}

// RecordChallenge counts a challenge file by whether it loaded.
func (m *Metrics) RecordChallenge(err error) {
	if err != nil {
		m.ChallengesRejected.Inc()
		return
	}
	m.ChallengesAccepted.Inc()
}

// RecordRun records a finished run by outcome and stage.
func (m *Metrics) RecordRun(res *analysis.Result) {
	m.registry.Counter(
		"runs_total",
		"Finished analysis runs",
		Labels{"outcome": string(res.Outcome), "stage": string(res.Stage)},
	).Inc()
	m.RunDuration.ObserveDuration(res.Elapsed)
	if res.Outcome != analysis.OutcomeNoConclusion {
		m.RunStdDev.Observe(res.StdDev)
	}
	m.LastRunTimestamp.Set(time.Now().Unix())
}

// RecordRunError counts a run that returned an error.
func (m *Metrics) RecordRunError() {
	m.RunErrors.Inc()
}

// RecordCheck counts a run whose expected answer was known.
func (m *Metrics) RecordCheck(correct bool) {
	m.registry.Counter(
		"checked_runs_total",
		"Runs compared against a known answer",
		Labels{"correct": strconv.FormatBool(correct)},
	).Inc()
}

// RecordReload counts a configuration reload attempt.
func (m *Metrics) RecordReload(err error) {
	if err != nil {
		m.ReloadsRejected.Inc()
		return
	}
	m.ReloadsApplied.Inc()
}

// RecordTrial counts one bench trial per key length.
func (m *Metrics) RecordTrial(t store.Trial) {
	m.registry.Counter(
		"bench_trials_total",
		"Bench trials by key length and correctness",
		Labels{"key_length": strconv.Itoa(t.KeyLength), "correct": strconv.FormatBool(t.Correct)},
	).Inc()
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}
