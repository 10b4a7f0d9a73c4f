package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simlink_connections",
		Help: "Number of open controller connections",
	})

	vehicles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simlink_vehicles",
		Help: "Number of vehicles in the world",
	})

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simlink_messages_total",
			Help: "Total inbound messages by msg_type",
		},
		[]string{"type"},
	)

	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simlink_dropped_total",
			Help: "Total dropped units by reason",
		},
		[]string{"reason"}, // decode_error|unknown_type|field_error|queue_full|backpressure
	)

	telemetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simlink_telemetry_total",
			Help: "Telemetry snapshots by result",
		},
		[]string{"result"}, // sent|dropped
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simlink_evictions_total",
			Help: "Vehicles removed from the world by reason",
		},
		[]string{"reason"}, // stall|disconnect|pool_exhausted
	)

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simlink_task_queue_depth",
		Help: "Tasks waiting for the simulation tick",
	})

	queueOverflowTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simlink_task_queue_overflow_total",
			Help: "Task queue overflows by policy",
		},
		[]string{"policy"},
	)

	stepRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simlink_step_requests_total",
		Help: "Steps requested by the external scheduler",
	})
)

func init() {
	prometheus.MustRegister(
		connections,
		vehicles,
		messagesTotal,
		droppedTotal,
		telemetryTotal,
		evictionsTotal,
		queueDepth,
		queueOverflowTotal,
		stepRequestsTotal,
	)
}

func AddConnections(delta float64) { connections.Add(delta) }
func SetVehicles(n int)            { vehicles.Set(float64(n)) }
func IncMessage(msgType string)    { messagesTotal.WithLabelValues(msgType).Inc() }
func IncDropped(reason string)     { droppedTotal.WithLabelValues(reason).Inc() }
func IncTelemetry(result string)   { telemetryTotal.WithLabelValues(result).Inc() }
func IncEviction(reason string)    { evictionsTotal.WithLabelValues(reason).Inc() }
func AddStepRequests(n int)        { stepRequestsTotal.Add(float64(n)) }

// QueueMetrics 将任务队列的深度与溢出写入 Prometheus
type QueueMetrics struct{}

func (QueueMetrics) SetQueueDepth(n int)            { queueDepth.Set(float64(n)) }
func (QueueMetrics) IncQueueOverflow(policy string) { queueOverflowTotal.WithLabelValues(policy).Inc() }
