package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "power_service_"

var (
	registerOnce sync.Once

	eventsTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	restartsTotal    prometheus.Counter
	stateCode        prometheus.Gauge
	alarmActive      prometheus.Gauge
	supplyVoltage    prometheus.Gauge
	supercapVoltage  prometheus.Gauge
)

// Init registers the service metrics. Safe to call more than once; helpers
// are no-ops until it has been called, which keeps unit tests metric-free.
func Init() {
	registerOnce.Do(func() {
		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_total",
				Help: "Total state machine events by kind",
			},
			[]string{"event"},
		)
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Total state transitions by source and target",
			},
			[]string{"from", "to"},
		)
		restartsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "restarts_total",
				Help: "Total system restarts requested by the state machine",
			},
		)
		stateCode = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "state_code",
				Help: "Wire code of the current power state",
			},
		)
		alarmActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "overvoltage_alarm_active",
				Help: "1 while the supercap overvoltage latch is set",
			},
		)
		supplyVoltage = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "supply_voltage_volts",
				Help: "Last sampled external supply voltage",
			},
		)
		supercapVoltage = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "supercap_voltage_volts",
				Help: "Last sampled supercap voltage",
			},
		)

		prometheus.MustRegister(
			eventsTotal,
			transitionsTotal,
			restartsTotal,
			stateCode,
			alarmActive,
			supplyVoltage,
			supercapVoltage,
		)
	})
}

// Handler serves the registry for an optional /metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvent counts one delivered state machine event.
func ObserveEvent(event string) {
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveTransition counts one completed transition and updates the state
// gauge.
func ObserveTransition(from, to string, code int) {
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(from, to).Inc()
	}
	if stateCode != nil {
		stateCode.Set(float64(code))
	}
}

// IncRestart counts one requested system restart.
func IncRestart() {
	if restartsTotal != nil {
		restartsTotal.Inc()
	}
}

// SetAlarm mirrors the overvoltage latch.
func SetAlarm(active bool) {
	if alarmActive != nil {
		if active {
			alarmActive.Set(1)
		} else {
			alarmActive.Set(0)
		}
	}
}

// SetVoltages publishes the last sampled input voltages.
func SetVoltages(vin, vscap float64) {
	if supplyVoltage != nil {
		supplyVoltage.Set(vin)
	}
	if supercapVoltage != nil {
		supercapVoltage.Set(vscap)
	}
}
