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

package trace

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpanParenting(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	parent, ctx := NewSpan(context.Background(), "scatter")
	child, _ := NewSpan(ctx, "shard")
	AnnotateSQL(child, "select next_id, cache from user_seq where id = 0")
	child.Finish()
	parent.Finish()

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "shard", spans[0].OperationName)
	assert.Equal(t, "scatter", spans[1].OperationName)
	assert.Equal(t, spans[1].SpanContext.SpanID, spans[0].ParentID)
	assert.Equal(t, "select", spans[0].Tag("sql-statement-type"))
}

func TestAnnotateSQLTruncates(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	span, _ := NewSpan(context.Background(), "long")
	AnnotateSQL(span, "update t set x = 1 where "+strings.Repeat("a", 500))
	span.Finish()

	sql := tracer.FinishedSpans()[0].Tag("sql").(string)
	assert.Len(t, sql, 256+1)
	assert.True(t, strings.HasSuffix(sql, " [...]"))
}

func TestStartTracing(t *testing.T) {
	defer func(old string) { tracingServer = old }(tracingServer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	tracingServer = "noop"
	assert.Equal(t, nilCloser{}, StartTracing("seqctl"))

	tracingServer = "fake"
	tracingBackendFactories["fake"] = func(s string) (opentracing.Tracer, io.Closer, error) {
		return fakeTracer{Tracer: mocktracer.New(), name: s}, fakeTracer{name: s}, nil
	}
	closer := StartTracing("seqctl")
	tracer, ok := closer.(fakeTracer)
	require.True(t, ok)
	assert.Equal(t, "seqctl", tracer.name)
	_, ok = opentracing.GlobalTracer().(fakeTracer)
	assert.True(t, ok)
}

type fakeTracer struct {
	opentracing.Tracer
	name string
}

func (fakeTracer) Close() error { return nil }
