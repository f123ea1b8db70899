package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values shared by the counters below.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	// LicenseAssignments counts seat assignment attempts by result.
	LicenseAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metatask_license_assignments_total",
		Help: "Seat assignment attempts by result",
	}, []string{"result"})

	// LicenseRevocations counts seat revocation attempts by result.
	LicenseRevocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metatask_license_revocations_total",
		Help: "Seat revocation attempts by result",
	}, []string{"result"})

	// BookingTransitions counts lifecycle transitions by event and result.
	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metatask_booking_transitions_total",
		Help: "Booking lifecycle transitions by event and result",
	}, []string{"event", "result"})

	// BookingNotificationFailures counts swallowed notification errors.
	BookingNotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metatask_booking_notifications_failed_total",
		Help: "Booking notifications whose subscribers failed",
	}, []string{"source_service"})

	// SyncRecords counts per-record outcomes of cross-service sync batches.
	SyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metatask_sync_records_total",
		Help: "Cross-service sync records by operation and result",
	}, []string{"operation", "result"})
)

// ResultLabel maps an operation outcome onto a result label.
func ResultLabel(ok bool, err error) string {
	switch {
	case err != nil:
		return ResultError
	case ok:
		return ResultOK
	default:
		return ResultRejected
	}
}
