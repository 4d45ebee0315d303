package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wakesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_scheduler_wakes_total",
		Help: "Wake-ups handled, including spurious ones.",
	})
	tasksRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_scheduler_tasks_run_total",
		Help: "Tasks whose handler succeeded.",
	}, []string{"type"})
	taskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_scheduler_task_failures_total",
		Help: "Task handler failures; the task stays queued.",
	}, []string{"type"})
)
