package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	marksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marks_accepted_total",
		Help: "Attendance attempts that committed a record.",
	})
	marksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_rejected_total",
		Help: "Attendance attempts rejected, by rejection kind.",
	}, []string{"kind"})
)

func markCounter(kind Kind) {
	marksRejected.WithLabelValues(string(kind)).Inc()
}
