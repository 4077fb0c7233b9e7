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

package app

import (
	"fmt"

	"github.com/ryan2x/lense/pkg/config"
	"github.com/ryan2x/lense/pkg/log"
)

// Bootstrap 统一初始化：供 serve 与一次性 CLI 命令复用
type Bootstrap struct {
	Config *config.Config
	Logger *log.Logger
}

// NewBootstrap 根据配置创建 Bootstrap；cfg 为 nil 时使用默认配置
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(LogConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return &Bootstrap{Config: cfg, Logger: logger}, nil
}

// LogConfig 从应用配置提取日志配置
func LogConfig(cfg *config.Config) *log.Config {
	return &log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}
