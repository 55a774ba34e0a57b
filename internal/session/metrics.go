package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session activity. A nil *Metrics is valid and records
// nothing, so the session core never checks for instrumentation.
type Metrics struct {
	guests       prometheus.Gauge
	authAccepted prometheus.Counter
	authRejected prometheus.Counter
	broadcasts   prometheus.Counter
	forwards     prometheus.Counter
	disconnects  prometheus.Counter
	reconnects   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		guests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitbill_session_guests",
			Help: "Authorized guest connections on the hosted session.",
		}),
		authAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_session_auth_accepted_total",
			Help: "Guest handshakes that ended in admission.",
		}),
		authRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_session_auth_rejected_total",
			Help: "Guest handshakes rejected for a wrong passcode.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_session_broadcasts_total",
			Help: "Incremental updates broadcast to guests.",
		}),
		forwards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_session_forwards_total",
			Help: "Guest actions forwarded to the host.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_session_disconnects_total",
			Help: "Transport-level losses that suspended the session.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_session_reconnects_total",
			Help: "Successful resumptions of a suspended session.",
		}),
	}

	reg.MustRegister(
		m.guests,
		m.authAccepted,
		m.authRejected,
		m.broadcasts,
		m.forwards,
		m.disconnects,
		m.reconnects,
	)
	return m
}

func (m *Metrics) setGuests(n int) {
	if m == nil {
		return
	}
	m.guests.Set(float64(n))
}

func (m *Metrics) recordAuthAccepted() {
	if m == nil {
		return
	}
	m.authAccepted.Inc()
}

func (m *Metrics) recordAuthRejected() {
	if m == nil {
		return
	}
	m.authRejected.Inc()
}

func (m *Metrics) recordBroadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) recordForward() {
	if m == nil {
		return
	}
	m.forwards.Inc()
}

func (m *Metrics) recordDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

func (m *Metrics) recordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
