package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_tasks_submitted_total",
			Help: "Total number of tasks submitted to any manager.",
		},
	)

	tasksEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_tasks_ended_total",
			Help: "Total number of tasks that ended, by final status.",
		},
		[]string{"status"},
	)

	tasksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_tasks_active",
			Help: "Number of task bodies currently running.",
		},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_task_duration_seconds",
			Help:    "Time from task start to end in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(tasksSubmittedTotal)
	prometheus.MustRegister(tasksEndedTotal)
	prometheus.MustRegister(tasksActive)
	prometheus.MustRegister(taskDuration)
}
