package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsEmitted counts notifications handed to a device by
	// category and path (worker|direct).
	NotificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_notifications_emitted_total",
			Help: "Total number of notifications shown on devices",
		},
		[]string{"category", "path"},
	)

	// NotificationsSuppressed counts notifications dropped before display by
	// category and reason (foreground|other_district|preference|permission).
	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_notifications_suppressed_total",
			Help: "Total number of notifications suppressed before display",
		},
		[]string{"category", "reason"},
	)

	// RealtimeChannels tracks live change-feed channels per table.
	RealtimeChannels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stride_realtime_channels",
			Help: "Number of live realtime channels",
		},
		[]string{"table"},
	)

	// PresenceWrites counts last-seen write attempts by result (written|throttled|error).
	PresenceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_presence_writes_total",
			Help: "Total number of presence write attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks connected device sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stride_active_sessions",
			Help: "Number of connected device sessions",
		},
	)
)
