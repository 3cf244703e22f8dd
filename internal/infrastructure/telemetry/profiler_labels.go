package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys attached to sync work.
const (
	ProfilingLabelEntityType = "entity_type"
	ProfilingLabelSource     = "source"
	ProfilingLabelStage      = "stage"
)

// Pipeline stages used as ProfilingLabelStage values.
const (
	StageFetch  = "fetch"
	StageImport = "import"
)

// MaxLabelValueLength bounds label values.
const MaxLabelValueLength = 128

// HighCardinalityLabels are dropped from profiling labels. Per-run and
// per-request identifiers belong on spans; span profiles link the two.
var HighCardinalityLabels = map[string]bool{
	"sync_log_id": true,
	"request_id":  true,
	"trace_id":    true,
	"span_id":     true,
	"row_id":      true,
	"job_id":      true,
}

// SyncLabels returns the labels of one pipeline stage.
func SyncLabels(entityType, source, stage string) map[string]string {
	return map[string]string{
		ProfilingLabelEntityType: entityType,
		ProfilingLabelSource:     source,
		ProfilingLabelStage:      stage,
	}
}

// WithProfilingLabels runs fn with pprof labels that Pyroscope uses to slice
// profiles. Without a running profiler the labels cost a context value.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels returns sorted key/value pairs, skipping empty and
// high-cardinality labels and truncating long values.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if value == "" {
			continue
		}
		key = sanitizeLabelKey(key)
		if key == "" || HighCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases and keeps only [a-z0-9_].
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}
