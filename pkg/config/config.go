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

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	HumanSource HumanSourceConfig `mapstructure:"human_source"`
	Hiring      HiringConfig      `mapstructure:"hiring"`
	OnlyOnce    OnlyOnceConfig    `mapstructure:"only_once"`
	LabelStore  LabelStoreConfig  `mapstructure:"label_store"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	API         APIConfig         `mapstructure:"api"`
	Log         LogConfig         `mapstructure:"log"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// HumanSourceConfig 人工标注服务连接配置
type HumanSourceConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`            // 默认 2109
	DialTimeout   string `mapstructure:"dial_timeout"`    // 如 "5s"
	PollTimeout   string `mapstructure:"poll_timeout"`    // 阻塞式可用人数查询的等待上限，默认 "1s"
	MaxFrameBytes int    `mapstructure:"max_frame_bytes"` // 单帧上限，<=0 使用 transport 默认
}

// HiringConfig 招募子系统配置；连接失败时仅禁用招募，不影响主连接
type HiringConfig struct {
	Enable         bool    `mapstructure:"enable"`
	Host           string  `mapstructure:"host"` // 为空时沿用 human_source.host
	Port           int     `mapstructure:"port"` // 默认 2110
	RequestTimeout string  `mapstructure:"request_timeout"`
	QPS            float64 `mapstructure:"qps"`   // Hire 请求限速，<=0 不限速
	Burst          int     `mapstructure:"burst"` // 令牌桶容量，<=0 时取 1
}

// OnlyOnceConfig 实体 → onlyOnceID 分配器
type OnlyOnceConfig struct {
	Type      string `mapstructure:"type"`       // memory | redis
	URL       string `mapstructure:"url"`        // redis://host:6379/0，type=redis 时必填
	KeyPrefix string `mapstructure:"key_prefix"` // 默认 lense:onlyonce
}

// LabelStoreConfig 标注结果台账
type LabelStoreConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// SimulationConfig 模拟人工误差模型
type SimulationConfig struct {
	HumanCorrectnessProb float64 `mapstructure:"human_correctness_prob"` // 默认 0.7
}

// APIConfig 状态/指标 HTTP 服务配置
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置；指标挂在 API 服务的 /metrics 上
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("human_source.host", "localhost")
	v.SetDefault("human_source.port", 2109)
	v.SetDefault("human_source.dial_timeout", "5s")
	v.SetDefault("human_source.poll_timeout", "1s")
	v.SetDefault("hiring.port", 2110)
	v.SetDefault("hiring.request_timeout", "10s")
	v.SetDefault("hiring.burst", 1)
	v.SetDefault("only_once.type", "memory")
	v.SetDefault("only_once.key_prefix", "lense:onlyonce")
	v.SetDefault("label_store.type", "memory")
	v.SetDefault("simulation.human_correctness_prob", 0.7)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.prometheus.enable", true)
	v.SetDefault("monitoring.tracing.service_name", "lense")
}

// Default 不读文件，仅使用默认值与环境变量
func Default() *Config {
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// 默认值均为基础类型，不会解析失败
		panic(err)
	}
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvPrefix("LENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(&config)

	return &config, nil
}

// replaceEnvVars 替换 ${VAR} 形式的连接串，避免把密码写进配置文件
func replaceEnvVars(config *Config) {
	config.LabelStore.DSN = expandEnv(config.LabelStore.DSN)
	config.OnlyOnce.URL = expandEnv(config.OnlyOnce.URL)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}

// Addr human_source 的 host:port
func (c HumanSourceConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Addr hiring 的 host:port；host 为空时使用 fallbackHost
func (c HiringConfig) Addr(fallbackHost string) string {
	host := c.Host
	if host == "" {
		host = fallbackHost
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Addr API 监听地址
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
