// Package metrics records per-generation measurements and writes them as a
// single JSON line in Embedded Metric Format, so the file can be shipped to
// any log pipeline that understands EMF.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitPercent      = "Percent"
	UnitNone         = "None"
)

// Namespace groups every metric this module emits.
const Namespace = "ImageGen"

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// emfDirective is the _aws metadata block.
type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates dimensions, metrics, and properties for one
// generation. It is not safe for concurrent use; the session controller owns
// one per job and touches it only under its own lock.
type Recorder struct {
	namespace  string
	started    time.Time
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]float64
	properties map[string]interface{}
	now        func() time.Time
}

// New creates a Recorder and starts its latency clock.
func New(namespace string) *Recorder {
	r := &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]float64),
		properties: make(map[string]interface{}),
		now:        time.Now,
	}
	r.started = r.now()
	return r
}

// Dimension adds a dimension key-value pair.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric sets a named metric value, replacing any earlier value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Add increments a count metric by delta.
func (r *Recorder) Add(name string, delta float64) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: UnitCount}
	r.values[name] += delta
	return r
}

// Count is a convenience for Add(name, 1).
func (r *Recorder) Count(name string) *Recorder {
	return r.Add(name, 1)
}

// Property adds a non-metric field to the document.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.properties[key] = value
	return r
}

// Elapsed returns the time since the Recorder was created.
func (r *Recorder) Elapsed() time.Duration {
	return r.now().Sub(r.started)
}

// Flush writes the document as a single JSON line to w. A Recorder with no
// metrics writes nothing. After flushing, the Recorder should not be reused.
func (r *Recorder) Flush(w io.Writer) error {
	if len(r.metrics) == 0 {
		return nil
	}

	doc := make(map[string]interface{})

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	metricDefs := make([]metricDef, 0, len(names))
	for _, name := range names {
		metricDefs = append(metricDefs, r.metrics[name])
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)

	doc["_aws"] = emfDirective{
		Timestamp: r.now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    metricDefs,
		}},
	}

	// Properties first so dimensions and metrics win on a key clash.
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
