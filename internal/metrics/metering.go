package metrics

import "time"

// Admitted records a successful admission for a plan.
func Admitted(plan string, elapsed time.Duration) {
	ArtifactsAdmitted.WithLabelValues(plan).Inc()
	AdmissionDuration.Observe(elapsed.Seconds())
}

// Rejected records a quota rejection for a plan.
func Rejected(plan string) {
	QuotaRejections.WithLabelValues(plan).Inc()
}

// Rendered records codec latency.
func Rendered(elapsed time.Duration) {
	RenderDuration.Observe(elapsed.Seconds())
}

// Uploaded records the outcome of an image upload.
func Uploaded(ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	ImageUploads.WithLabelValues(status).Inc()
}
