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

	lerrors "github.com/ryan2x/lense/pkg/errors"
)

const (
	// DefaultHumanCorrectnessProb 默认的人工正确率
	DefaultHumanCorrectnessProb = 0.7
	// MaxAnswerOptions 误差模型覆盖的最大选项数
	MaxAnswerOptions = 29
)

// ErrorModel 模拟人工作答的误差权重（对数）。
// Agreement = ln(p)；Disagreement[k] = ln((1-p)/(k-1))，即答错时在其余 k-1 个选项中均匀选择。
type ErrorModel struct {
	CorrectnessProb float64
	Agreement       float64
	Disagreement    [MaxAnswerOptions + 1]float64 // 下标为选项数 k，仅 2..MaxAnswerOptions 有效
}

// NewErrorModel 按正确率 p 计算权重，p 取值 (0, 1]
func NewErrorModel(p float64) (ErrorModel, error) {
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return ErrorModel{}, lerrors.Wrapf(lerrors.ErrInvalidArg, "human correctness prob %v", p)
	}
	m := ErrorModel{CorrectnessProb: p, Agreement: math.Log(p)}
	for k := 2; k <= MaxAnswerOptions; k++ {
		m.Disagreement[k] = math.Log((1 - p) / float64(k-1))
	}
	return m, nil
}

// DisagreementFor 选项数为 k 时的答错权重
func (m ErrorModel) DisagreementFor(k int) (float64, bool) {
	if k < 2 || k > MaxAnswerOptions {
		return 0, false
	}
	return m.Disagreement[k], true
}

// Table 选项数为 k 的变量的 k×k 误差表：[真值][人工答案]，对角为 Agreement，其余为 Disagreement[k]
func (m ErrorModel) Table(k int) ([][]float64, error) {
	d, ok := m.DisagreementFor(k)
	if !ok {
		return nil, lerrors.Wrapf(lerrors.ErrInvalidArg, "answer options %d out of [2, %d]", k, MaxAnswerOptions)
	}
	t := make([][]float64, k)
	for i := range t {
		t[i] = make([]float64, k)
		for j := range t[i] {
			if i == j {
				t[i][j] = m.Agreement
			} else {
				t[i][j] = d
			}
		}
	}
	return t, nil
}

// SetHumanCorrectnessProb 更新正确率并重算误差模型
func (c *Client) SetHumanCorrectnessProb(p float64) error {
	m, err := NewErrorModel(p)
	if err != nil {
		return err
	}
	c.modelMu.Lock()
	c.errModel = m
	c.modelMu.Unlock()
	return nil
}

// ErrorModel 当前误差模型的副本
func (c *Client) ErrorModel() ErrorModel {
	c.modelMu.RLock()
	defer c.modelMu.RUnlock()
	return c.errModel
}
