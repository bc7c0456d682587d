package types

// Telemetry metric names for CloudWatch and Prometheus.
// All components MUST use these constants.
const (
	// Metric Names
	MetricSweepDuration     = "SweepDuration"
	MetricSweepProcessed    = "SweepProcessed"
	MetricSweepErrors       = "SweepErrors"
	MetricAdsExpired        = "AdsExpired"
	MetricAdsDeleted        = "AdsDeleted"
	MetricAdsAutoRenewed    = "AdsAutoRenewed"
	MetricWarningsSent      = "WarningsSent"
	MetricNotificationFails = "NotificationFailure"

	// Dimension Keys
	DimStage = "Stage"
	DimSink  = "Sink"

	// Metric Namespace
	MetricNamespace = "AdLifecycle"
)
