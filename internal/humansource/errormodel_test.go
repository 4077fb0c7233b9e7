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

package humansource

import (
	"math"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/ryan2x/lense/pkg/errors"
)

func TestNewErrorModel(t *testing.T) {
	m, err := NewErrorModel(0.7)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.7), m.Agreement, 1e-12)
	for k := 2; k <= MaxAnswerOptions; k++ {
		d, ok := m.DisagreementFor(k)
		require.True(t, ok)
		assert.InDelta(t, math.Log(0.3/float64(k-1)), d, 1e-12, "k=%d", k)
	}
	_, ok := m.DisagreementFor(1)
	assert.False(t, ok)
	_, ok = m.DisagreementFor(MaxAnswerOptions + 1)
	assert.False(t, ok)
}

func TestNewErrorModel_Invalid(t *testing.T) {
	for _, p := range []float64{0, -0.1, 1.5, math.NaN()} {
		_, err := NewErrorModel(p)
		assert.ErrorIs(t, err, lerrors.ErrInvalidArg, "p=%v", p)
	}
}

func TestErrorModel_Table(t *testing.T) {
	m, err := NewErrorModel(0.9)
	require.NoError(t, err)
	tbl, err := m.Table(3)
	require.NoError(t, err)
	require.Len(t, tbl, 3)
	for i := range tbl {
		for j := range tbl[i] {
			if i == j {
				assert.Equal(t, m.Agreement, tbl[i][j])
			} else {
				assert.InDelta(t, math.Log(0.1/2), tbl[i][j], 1e-12)
			}
		}
	}
	_, err = m.Table(30)
	assert.Error(t, err)
}

func TestClient_SetHumanCorrectnessProb(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	c := New(a, WithHumanCorrectnessProb(0.8))
	defer c.Close()

	assert.Equal(t, 0.8, c.ErrorModel().CorrectnessProb)
	require.NoError(t, c.SetHumanCorrectnessProb(0.6))
	assert.InDelta(t, math.Log(0.6), c.ErrorModel().Agreement, 1e-12)
	assert.Error(t, c.SetHumanCorrectnessProb(2))
	assert.Equal(t, 0.6, c.ErrorModel().CorrectnessProb)
}
