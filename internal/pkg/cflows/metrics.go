package cflows

import "github.com/ManuelReschke/MetaTask/internal/pkg/metrics"

const (
	opSyncTeamBookings = "sync_team_bookings"
	opSyncCompleted    = "sync_completed_bookings"
	opMirrorSave       = "mirror_team_booking"
	opMirrorDelete     = "delete_team_booking_mirror"
)

func recordSync(op string, err error) {
	metrics.SyncRecords.WithLabelValues(op, metrics.ResultLabel(err == nil, err)).Inc()
}
