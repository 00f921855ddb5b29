package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowcore"

// Registry holds all metric instances for flowcore components.
type Registry struct {
	// Resource pool metrics
	PoolCapacity     *prometheus.GaugeVec
	PoolInUse        *prometheus.GaugeVec
	PoolWaiting      *prometheus.GaugeVec
	PoolWaitDuration *prometheus.HistogramVec

	// Task metrics
	TasksStarted *prometheus.CounterVec
	TaskOutcomes *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// Channel metrics
	ChannelDepth   *prometheus.GaugeVec
	ChannelPuts    *prometheus.CounterVec
	ChannelGets    *prometheus.CounterVec
	ChannelBlocked *prometheus.CounterVec

	// Worker pool metrics
	WorkerPoolSize      *prometheus.GaugeVec
	WorkerPoolActive    *prometheus.GaugeVec
	WorkerPoolQueued    *prometheus.GaugeVec
	WorkerPoolCompleted *prometheus.CounterVec
	WorkerPoolDuration  *prometheus.HistogramVec

	// Pipeline metrics
	PipelineItems *prometheus.CounterVec

	// Broadcast hub metrics
	HubMembers     *prometheus.GaugeVec
	HubReceived    *prometheus.CounterVec
	HubDeliveries  *prometheus.CounterVec
	HubRateLimited *prometheus.CounterVec

	// Shutdown and scheduling metrics
	ShutdownState *prometheus.GaugeVec
	ShutdownTasks *prometheus.CounterVec
	ScheduledRuns *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by flowcore components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   prometheus.DefBuckets,
		}, labels)
	}

	return &Registry{
		PoolCapacity:     gauge("resourcepool", "capacity", "Fixed number of permits", "pool"),
		PoolInUse:        gauge("resourcepool", "in_use", "Permits currently held", "pool"),
		PoolWaiting:      gauge("resourcepool", "waiting", "Acquirers suspended waiting for a permit", "pool"),
		PoolWaitDuration: histogram("resourcepool", "wait_duration_seconds", "Time spent waiting for a permit", "pool"),

		TasksStarted: counter("task", "started_total", "Total number of tasks started", "scope"),
		TaskOutcomes: counter("task", "outcomes_total", "Terminal task outcomes by kind", "scope", "outcome"),
		TaskDuration: histogram("task", "duration_seconds", "Time from task start to terminal state", "scope"),

		ChannelDepth:   gauge("channel", "depth", "Items currently queued", "channel"),
		ChannelPuts:    counter("channel", "puts_total", "Items accepted by put", "channel"),
		ChannelGets:    counter("channel", "gets_total", "Items delivered by get", "channel"),
		ChannelBlocked: counter("channel", "blocked_total", "Operations that had to suspend", "channel", "op"),

		WorkerPoolSize:      gauge("workerpool", "size", "Number of workers", "pool"),
		WorkerPoolActive:    gauge("workerpool", "active_workers", "Workers currently executing", "pool"),
		WorkerPoolQueued:    gauge("workerpool", "queued_tasks", "Submissions waiting for a worker", "pool"),
		WorkerPoolCompleted: counter("workerpool", "completed_total", "Finished submissions by status", "pool", "status"),
		WorkerPoolDuration:  histogram("workerpool", "task_duration_seconds", "Time spent executing submissions", "pool"),

		PipelineItems: counter("pipeline", "items_total", "Pipeline items by stage status", "pipeline", "status"),

		HubMembers:     gauge("hub", "members", "Connections currently open", "hub"),
		HubReceived:    counter("hub", "received_total", "Inbound messages accepted for fan-out", "hub"),
		HubDeliveries:  counter("hub", "deliveries_total", "Per-recipient deliveries by status", "hub", "status"),
		HubRateLimited: counter("hub", "rate_limited_total", "Inbound messages dropped by the per-connection limiter", "hub"),

		ShutdownState: gauge("shutdown", "state", "Coordinator lifecycle state (0 armed .. 3 complete)", "coordinator"),
		ShutdownTasks: counter("shutdown", "tasks_total", "Root task outcomes collected while draining", "coordinator", "outcome"),
		ScheduledRuns: counter("scheduler", "runs_total", "Scheduled job executions by outcome", "job", "outcome"),
	}
}
