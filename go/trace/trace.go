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

// Package trace contains a helper interface that allows various tracing
// tools to be plugged in to components using this interface. If no plugin is
// registered, the default one makes all trace calls into no-ops.
package trace

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/spf13/pflag"

	"vitess.io/shardcore/go/vt/log"
	"vitess.io/shardcore/go/vt/utils"
)

// Span represents a unit of work within a trace. After creating a Span with
// NewSpan(), call Finish() when that work is done to record the Span.
type Span interface {
	Finish()
	// Annotate records a key/value pair associated with a Span. It should be
	// called between Start and Finish.
	Annotate(key string, value any)
}

// NewSpan creates a new Span with the currently installed tracer. The span
// is a child of the span carried by ctx, if any.
func NewSpan(ctx context.Context, label string) (Span, context.Context) {
	otSpan, ctx := opentracing.StartSpanFromContext(ctx, label)
	return openTracingSpan{otSpan: otSpan}, ctx
}

// AnnotateSQL annotates information about a sql query in the span.
func AnnotateSQL(span Span, sql string) {
	const maxLen = 256
	if len(sql) > maxLen {
		sql = sql[:maxLen-5] + " [...]"
	}
	span.Annotate("sql-statement-type", statementType(sql))
	span.Annotate("sql", sql)
}

func statementType(sql string) string {
	for i := 0; i < len(sql); i++ {
		if sql[i] == ' ' {
			return sql[:i]
		}
	}
	return sql
}

var _ Span = (*openTracingSpan)(nil)

type openTracingSpan struct {
	otSpan opentracing.Span
}

// Finish will mark a span as finished
func (js openTracingSpan) Finish() {
	js.otSpan.Finish()
}

// Annotate will add information to an existing span
func (js openTracingSpan) Annotate(key string, value any) {
	js.otSpan.SetTag(key, value)
}

type nilCloser struct{}

func (nilCloser) Close() error { return nil }

// tracingBackendFactories maps a --tracer value to the function that builds
// the matching tracer.
var tracingBackendFactories = make(map[string]func(serviceName string) (opentracing.Tracer, io.Closer, error))

var (
	tracingServer     = "noop"
	jaegerAgentHost   string
	jaegerSamplerRate = 0.1
)

// RegisterFlags installs the tracing flags on the given FlagSet.
func RegisterFlags(fs *pflag.FlagSet) {
	utils.SetFlagStringVar(fs, &tracingServer, "tracer", tracingServer, "tracing service to use (noop or opentracing-jaeger)")
	utils.SetFlagStringVar(fs, &jaegerAgentHost, "jaeger-agent-host", "", "host and port to send spans to. if empty, no tracing will be done")
	fs.Float64Var(&jaegerSamplerRate, "tracing-sampling-rate", jaegerSamplerRate, "sampling rate for the probabilistic jaeger sampler")
}

// StartTracing enables tracing for a named service and installs the tracer
// as the opentracing global tracer. The returned Closer flushes the tracer.
func StartTracing(serviceName string) io.Closer {
	factory, ok := tracingBackendFactories[tracingServer]
	if !ok {
		if tracingServer != "noop" {
			log.Errorf("no such tracing service found: %s", tracingServer)
		}
		return nilCloser{}
	}

	tracer, closer, err := factory(serviceName)
	if err != nil {
		log.Errorf("failed to create a %s tracer: %v", tracingServer, err)
		return nilCloser{}
	}
	opentracing.SetGlobalTracer(tracer)
	log.Infof("successfully started tracing with [%s]", tracingServer)
	return closer
}
