// Package metrics provides constants used across metric definitions.
package metrics

// Label values.
const (
	// StatusSuccess marks a request or operation that completed.
	StatusSuccess = "success"
	// StatusError marks a request that failed before a response arrived.
	StatusError = "error"

	// KindRead counts records read from the source.
	KindRead = "read"
	// KindInserted counts rows inserted into the sink.
	KindInserted = "inserted"
	// KindSkipped counts rows already present in the sink.
	KindSkipped = "skipped_existing"
	// KindFailed counts records lost to mapping or batch failures.
	KindFailed = "failed"
	// KindChildRows counts dependent rows such as product tags.
	KindChildRows = "child_rows"
	// KindPurged counts source records deleted after archiving.
	KindPurged = "purged"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms.
	BucketStart100ms = 0.1

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
