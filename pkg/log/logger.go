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

package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 简单封装，供 internal 使用
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	out   io.Writer
}

// Config 日志配置（可与 config 包对接）
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size"`    // 单个日志文件上限（MB），<=0 时 lumberjack 默认 100
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age"`     // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`
}

// NewLogger 根据配置创建 Logger，cfg 可为 nil 使用默认
func NewLogger(cfg *Config) (*Logger, error) {
	return newLogger(newWriter(cfg), cfg), nil
}

// newWriter 配置了 file 时按大小滚动写文件，否则 stdout
func newWriter(cfg *Config) io.Writer {
	if cfg == nil || strings.TrimSpace(cfg.File) == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// NewWithWriter 输出到指定 writer，测试与 CLI 用
func NewWithWriter(w io.Writer, cfg *Config) *Logger {
	return newLogger(w, cfg)
}

// Nop 丢弃全部输出
func Nop() *Logger {
	return newLogger(io.Discard, nil)
}

func newLogger(w io.Writer, cfg *Config) *Logger {
	levelVar := &slog.LevelVar{}
	if cfg != nil {
		levelVar.Set(ParseLevel(cfg.Level))
	}
	opts := &slog.HandlerOptions{Level: levelVar}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg != nil && cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h), level: levelVar, out: w}
}

// ParseLevel debug | info | warn | error，其余按 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LevelVar 当前级别，供 hertz 等外部 logger 共享
func (l *Logger) LevelVar() *slog.LevelVar {
	return l.level
}

// With 返回附加属性的子 Logger，级别与父 Logger 共享
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, out: l.out}
}

// Writer 底层输出；hertz 等外部 logger 须复用它，同一文件只能有一个滚动写入者
func (l *Logger) Writer() io.Writer {
	return l.out
}
