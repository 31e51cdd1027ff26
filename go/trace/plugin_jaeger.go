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
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
)

// newJaegerTracerFromEnv will instantiate a tracer using the Jaeger
// environment variables (JAEGER_*), with the agent host and sampling rate
// taken from the flags when set.
func newJaegerTracerFromEnv(serviceName string) (opentracing.Tracer, io.Closer, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}
	if jaegerAgentHost != "" {
		cfg.Reporter.LocalAgentHostPort = jaegerAgentHost
	}
	cfg.Sampler.Type = jaeger.SamplerTypeProbabilistic
	cfg.Sampler.Param = jaegerSamplerRate

	return cfg.NewTracer(config.Logger(&traceLogger{}))
}

func init() {
	tracingBackendFactories["opentracing-jaeger"] = newJaegerTracerFromEnv
}
