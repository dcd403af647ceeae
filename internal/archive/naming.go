package archive

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ObjectTimestampLayout stamps each object with its batch processing time.
	ObjectTimestampLayout = "20060102T150405Z"

	ndjsonExtension   = ".ndjson"
	NDJSONContentType = "application/x-ndjson"
)

// runTagLength is how many hex digits of the run id go into each key.
const runTagLength = 12

// ObjectNamer derives archive object keys:
//
//	{entity}/{YYYY}/{MM}/{DD}/{entity}-{batchTimestamp}-{runTag}.ndjson
//
// The date partition is the run start, the timestamp the batch time and the
// run tag a prefix of the run id, so two runs in the same second never share
// a key. Within a run a second batch in the same second gets a "-2" suffix.
type ObjectNamer struct {
	entity    string
	partition string
	runTag    string
	lastBase  string
	seq       int
}

// NewObjectNamer creates a namer for the run identified by runID.
func NewObjectNamer(entity string, runStart time.Time, runID string) *ObjectNamer {
	start := runStart.UTC()
	return &ObjectNamer{
		entity:    entity,
		partition: fmt.Sprintf("%s/%04d/%02d/%02d", entity, start.Year(), int(start.Month()), start.Day()),
		runTag:    runTag(runID),
	}
}

func runTag(runID string) string {
	tag := strings.ReplaceAll(runID, "-", "")
	if len(tag) > runTagLength {
		tag = tag[:runTagLength]
	}
	return tag
}

// Next returns the key for a batch processed at the given time.
func (n *ObjectNamer) Next(at time.Time) string {
	base := fmt.Sprintf("%s/%s-%s", n.partition, n.entity, at.UTC().Format(ObjectTimestampLayout))
	if n.runTag != "" {
		base += "-" + n.runTag
	}
	if base == n.lastBase {
		n.seq++
		return fmt.Sprintf("%s-%d%s", base, n.seq, ndjsonExtension)
	}
	n.lastBase = base
	n.seq = 1
	return base + ndjsonExtension
}
