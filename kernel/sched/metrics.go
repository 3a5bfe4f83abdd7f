package sched

import "github.com/prometheus/client_golang/prometheus"

// metrics instruments the scheduler. A nil *metrics is a valid no-op
// receiver, so the hot path never branches on configuration.
type metrics struct {
	ticks    prometheus.Counter
	switches prometheus.Counter
	preempts prometheus.Counter
	yields   prometheus.Counter
	tasks    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ember", Subsystem: "sched",
			Name: "ticks_total",
			Help: "Timer interrupts observed by the scheduler.",
		}),
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ember", Subsystem: "sched",
			Name: "switches_total",
			Help: "Context switches performed.",
		}),
		preempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ember", Subsystem: "sched",
			Name: "preemptions_total",
			Help: "Switches caused by time-slice expiry.",
		}),
		yields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ember", Subsystem: "sched",
			Name: "yields_total",
			Help: "Voluntary yields.",
		}),
		tasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ember", Subsystem: "sched",
			Name: "tasks",
			Help: "Live tasks in the arena.",
		}),
	}
	reg.MustRegister(m.ticks, m.switches, m.preempts, m.yields, m.tasks)
	return m
}

func (m *metrics) onTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *metrics) onSwitch(preempt bool) {
	if m == nil {
		return
	}
	m.switches.Inc()
	if preempt {
		m.preempts.Inc()
	}
}

func (m *metrics) onYield() {
	if m == nil {
		return
	}
	m.yields.Inc()
}

func (m *metrics) setTasks(n int) {
	if m == nil {
		return
	}
	m.tasks.Set(float64(n))
}
