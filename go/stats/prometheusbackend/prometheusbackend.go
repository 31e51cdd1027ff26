/*
Copyright 2019 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package prometheusbackend exports the stats variables to Prometheus.
package prometheusbackend

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitess.io/shardcore/go/stats"
	"vitess.io/shardcore/go/vt/logutil"
)

// PromBackend implements the stats hook using Prometheus as the backing
// metrics storage.
type PromBackend struct {
	namespace string
	registry  *prometheus.Registry
}

var logUnsupported = logutil.NewThrottledLogger("PrometheusUnsupportedMetricType", 1*time.Minute)

// New creates a backend publishing every stats variable, under the given
// namespace, into its own registry.
func New(namespace string) *PromBackend {
	be := &PromBackend{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}
	stats.Register(be.publishPrometheusMetric)
	return be
}

// Handler returns the HTTP handler serving the registry.
func (be *PromBackend) Handler() http.Handler {
	return promhttp.HandlerFor(be.registry, promhttp.HandlerOpts{})
}

// Registry returns the backing registry.
func (be *PromBackend) Registry() *prometheus.Registry {
	return be.registry
}

func (be *PromBackend) publishPrometheusMetric(name string, v stats.Variable) {
	switch st := v.(type) {
	case *stats.Gauge:
		be.newMetric(st, name, prometheus.GaugeValue, func() float64 { return float64(st.Get()) })
	case *stats.Counter:
		be.newMetric(st, name, prometheus.CounterValue, func() float64 { return float64(st.Get()) })
	case *stats.CountersWithSingleLabel:
		be.newCountersWithSingleLabel(st, name)
	default:
		logUnsupported.Infof("Not exporting to Prometheus an unsupported metric type of %T: %s", st, name)
	}
}

func (be *PromBackend) newCountersWithSingleLabel(c *stats.CountersWithSingleLabel, name string) {
	collector := &countersWithSingleLabelCollector{
		counters: c,
		desc: prometheus.NewDesc(
			be.buildPromName(name),
			c.Help(),
			[]string{stats.GetSnakeName(c.LabelName())},
			nil),
	}
	be.registry.MustRegister(collector)
}

func (be *PromBackend) newMetric(v stats.Variable, name string, vt prometheus.ValueType, f func() float64) {
	collector := &metricFuncCollector{
		f: f,
		desc: prometheus.NewDesc(
			be.buildPromName(name),
			v.Help(),
			nil,
			nil),
		vt: vt}
	be.registry.MustRegister(collector)
}

// buildPromName specifies the namespace as a prefix to the metric name
func (be *PromBackend) buildPromName(name string) string {
	s := strings.TrimPrefix(stats.GetSnakeName(name), be.namespace+"_")
	return prometheus.BuildFQName("", be.namespace, s)
}

type metricFuncCollector struct {
	// f returns the floating point value of the metric.
	f    func() float64
	desc *prometheus.Desc
	vt   prometheus.ValueType
}

// Describe implements Collector.
func (mc *metricFuncCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.desc
}

// Collect implements Collector.
func (mc *metricFuncCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(mc.desc, mc.vt, mc.f())
}

type countersWithSingleLabelCollector struct {
	counters *stats.CountersWithSingleLabel
	desc     *prometheus.Desc
}

// Describe implements Collector.
func (c *countersWithSingleLabelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *countersWithSingleLabelCollector) Collect(ch chan<- prometheus.Metric) {
	for tag, val := range c.counters.Counts() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(val), tag)
	}
}
