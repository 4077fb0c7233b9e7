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

// lense：人工标注服务客户端。serve 启动状态 API，其余子命令为一次性操作。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryan2x/lense/internal/app"
	"github.com/ryan2x/lense/pkg/config"
)

// version 构建时通过 -ldflags "-X main.version=..." 覆盖
var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:          "lense",
		Short:        "Human labeling service client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults and LENSE_* env when empty)")

	load := func() (*app.Bootstrap, error) {
		cfg := config.Default()
		if cfgFile != "" {
			var err error
			if cfg, err = config.LoadConfig(cfgFile); err != nil {
				return nil, err
			}
		}
		return app.NewBootstrap(cfg)
	}

	root.AddCommand(
		newServeCmd(load),
		newPollCmd(load),
		newPostCmd(load),
		newHireCmd(load),
		newConfigCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "lense %s\n", version)
			},
		},
	)
	return root
}

type loader func() (*app.Bootstrap, error)

func newConfigCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print effective config summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := load()
			if err != nil {
				return err
			}
			c := b.Config
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "human_source.addr=%s\n", c.HumanSource.Addr())
			fmt.Fprintf(out, "human_source.poll_timeout=%s\n", c.HumanSource.PollTimeout)
			fmt.Fprintf(out, "hiring.enable=%t\n", c.Hiring.Enable)
			if c.Hiring.Enable {
				fmt.Fprintf(out, "hiring.addr=%s\n", c.Hiring.Addr(c.HumanSource.Host))
			}
			fmt.Fprintf(out, "only_once.type=%s\n", c.OnlyOnce.Type)
			fmt.Fprintf(out, "label_store.type=%s\n", c.LabelStore.Type)
			fmt.Fprintf(out, "simulation.human_correctness_prob=%g\n", c.Simulation.HumanCorrectnessProb)
			fmt.Fprintf(out, "api.addr=%s\n", c.API.Addr())
			return nil
		},
	}
}
