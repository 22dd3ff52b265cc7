// Package metrics exposes the daemon's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HALCommands counts control channel commands by opcode and reply status.
	HALCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bthal_commands_total",
			Help: "Control channel commands by opcode and reply status",
		},
		[]string{"opcode", "status"},
	)

	// HALCommandDuration tracks the time spent handling a command.
	HALCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bthal_command_duration_seconds",
			Help:    "Control channel command handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"opcode"},
	)

	// Channels is the number of open control channels.
	Channels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bthal_channels",
			Help: "Open control channels",
		},
	)

	// Records is the number of registered service records.
	Records = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bthal_service_records",
			Help: "Registered service records",
		},
	)

	// AdapterState is the numeric adapter lifecycle state.
	AdapterState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bthal_adapter_state",
			Help: "Adapter state: 0 uninitialized, 1 initializing, 2 ready, 3 unregistered",
		},
	)

	// MgmtRequests counts management requests by opcode and result.
	MgmtRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bthal_mgmt_requests_total",
			Help: "Management interface requests by opcode and result",
		},
		[]string{"opcode", "result"},
	)

	// MgmtEvents counts management events received, by event code.
	MgmtEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bthal_mgmt_events_total",
			Help: "Management interface events by event code",
		},
		[]string{"event"},
	)
)
