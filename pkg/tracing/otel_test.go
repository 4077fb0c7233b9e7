// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	_, s1 := StartJobSpan(ctx, "sentence-7", 3)
	s1.End()
	_, s2 := StartQuerySpan(ctx, 3, 0)
	s2.End()
	_, s3 := StartPollSpan(ctx, 3)
	s3.End()
	_, s4 := StartHireSpan(ctx, "hire", 1)
	s4.End()

	ended := rec.Ended()
	require.Len(t, ended, 4)
	names := []string{ended[0].Name(), ended[1].Name(), ended[2].Name(), ended[3].Name()}
	assert.Equal(t, []string{"human.job.post", "human.query", "human.availability.poll", "hiring.hire"}, names)
}
