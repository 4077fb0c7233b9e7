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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
human_source:
  host: "humans.internal"
  port: 3109
  poll_timeout: "250ms"
api:
  port: 9000
  host: "127.0.0.1"
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host: got %q", cfg.API.Host)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
	if got := cfg.HumanSource.Addr(); got != "humans.internal:3109" {
		t.Errorf("HumanSource.Addr: got %q", got)
	}
	if got := ParseDuration(cfg.HumanSource.PollTimeout, time.Second); got != 250*time.Millisecond {
		t.Errorf("PollTimeout: got %v", got)
	}
	// 未在文件中出现的字段取默认值
	if cfg.Hiring.Port != 2110 {
		t.Errorf("Hiring.Port default: got %d", cfg.Hiring.Port)
	}
	if cfg.Simulation.HumanCorrectnessProb != 0.7 {
		t.Errorf("HumanCorrectnessProb default: got %v", cfg.Simulation.HumanCorrectnessProb)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_EnvDSN(t *testing.T) {
	t.Setenv("LENSE_TEST_DSN", "postgres://u:p@db/labels")
	dir := t.TempDir()
	yaml := `
label_store:
  type: postgres
  dsn: "${LENSE_TEST_DSN}"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LabelStore.DSN != "postgres://u:p@db/labels" {
		t.Errorf("LabelStore.DSN: got %q", cfg.LabelStore.DSN)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.HumanSource.Port != 2109 {
		t.Errorf("HumanSource.Port: got %d", cfg.HumanSource.Port)
	}
	if cfg.OnlyOnce.Type != "memory" || cfg.LabelStore.Type != "memory" {
		t.Errorf("store types: %q %q", cfg.OnlyOnce.Type, cfg.LabelStore.Type)
	}
	if got := cfg.Hiring.Addr("example.org"); got != "example.org:2110" {
		t.Errorf("Hiring.Addr fallback: got %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("", time.Second); got != time.Second {
		t.Errorf("empty: got %v", got)
	}
	if got := ParseDuration("bogus", time.Second); got != time.Second {
		t.Errorf("invalid: got %v", got)
	}
	if got := ParseDuration("-1s", time.Second); got != time.Second {
		t.Errorf("negative: got %v", got)
	}
	if got := ParseDuration("3s", time.Second); got != 3*time.Second {
		t.Errorf("valid: got %v", got)
	}
}
