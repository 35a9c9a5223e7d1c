package overlay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_spawn_total",
		Help: "Overlay spawn attempts by result.",
	}, []string{"result"})

	restoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_restore_total",
		Help: "Overlay restores by the naming scheme that succeeded (none when both failed).",
	}, []string{"scheme"})

	orphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlay_orphans_total",
		Help: "Registry entries dropped on load because their event was gone.",
	})

	deleteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlay_backup_delete_errors_total",
		Help: "Backup artifacts that could not be deleted after a restore.",
	})
)
