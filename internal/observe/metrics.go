package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "writepapers_frames_received_total",
		Help: "Total complete frames read from the server",
	})

	framesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "writepapers_frames_sent_total",
		Help: "Total frames written to the server",
	})

	bytesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "writepapers_bytes_sent_total",
		Help: "Total bytes written to the server, headers included",
	})

	framesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writepapers_frames_dropped_total",
			Help: "Total inbound frames dropped by reason",
		},
		[]string{"reason"}, // truncated|decode|unknown_type|bad_offline_payload
	)

	envelopesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writepapers_envelopes_routed_total",
			Help: "Total inbound envelopes by routing category",
		},
		[]string{"category"},
	)

	heartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "writepapers_heartbeats_total",
		Help: "Total heartbeats answered",
	})

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "writepapers_queue_depth",
			Help: "Current number of entries waiting in each dispatch queue",
		},
		[]string{"queue"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writepapers_commands_total",
			Help: "Total terminal commands executed by name",
		},
		[]string{"name"},
	)

	commandErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writepapers_command_errors_total",
			Help: "Total terminal command errors by reason",
		},
		[]string{"reason"}, // not_found|permission|handler
	)
)

func init() {
	prometheus.MustRegister(
		framesReceivedTotal,
		framesSentTotal,
		bytesSentTotal,
		framesDroppedTotal,
		envelopesRoutedTotal,
		heartbeatsTotal,
		queueDepth,
		commandsTotal,
		commandErrorsTotal,
	)
}

func IncFrameReceived()             { framesReceivedTotal.Inc() }
func IncDropped(reason string)      { framesDroppedTotal.WithLabelValues(reason).Inc() }
func IncRouted(category string)     { envelopesRoutedTotal.WithLabelValues(category).Inc() }
func IncHeartbeat()                 { heartbeatsTotal.Inc() }
func IncCommand(name string)        { commandsTotal.WithLabelValues(name).Inc() }
func IncCommandError(reason string) { commandErrorsTotal.WithLabelValues(reason).Inc() }

func SetQueueDepth(queue string, n int) { queueDepth.WithLabelValues(queue).Set(float64(n)) }

func AddSent(frameBytes int) {
	framesSentTotal.Inc()
	bytesSentTotal.Add(float64(frameBytes))
}
