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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryan2x/lense/internal/app/api"
	"github.com/ryan2x/lense/internal/humansource"
	"github.com/ryan2x/lense/internal/source"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the human service and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := api.NewApp(ctx, b)
			if err != nil {
				return err
			}
			errCh := make(chan error, 1)
			go func() { errCh <- application.Run(b.Config.API.Addr()) }()

			select {
			case <-ctx.Done():
				b.Logger.Info("signal received, shutting down")
			case <-application.Source().Done():
				b.Logger.Error("human service connection lost, shutting down")
			case err := <-errCh:
				if err != nil {
					b.Logger.Error("status API exited", "error", err)
				}
			}

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := application.Shutdown(sctx); err != nil {
				b.Logger.Warn("shutdown failed", "error", err)
			}
			return nil
		},
	}
}

// withSource 打开人工来源执行 fn 后关闭
func withSource(cmd *cobra.Command, load loader, fn func(ctx context.Context, s *source.HumanSource) error) error {
	b, err := load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	s, err := source.Open(ctx, b.Config, b.Logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func newPollCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <entity>",
		Short: "Ask how many idle workers could accept a job for the entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, load, func(ctx context.Context, s *source.HumanSource) error {
				n := s.AvailableHumans(ctx, args[0])
				if n == humansource.NoAnswer {
					return fmt.Errorf("no availability answer for %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func newPostCmd(load loader) *cobra.Command {
	var (
		jobPayload   string
		queryPayload string
		wait         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "post <entity>",
		Short: "Post a job, wait for a worker, ask one query and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, load, func(ctx context.Context, s *source.HumanSource) error {
				ctx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()

				ready := make(chan *source.HumanHandle, 1)
				if err := s.MakeJobPosting(ctx, args[0], jobPayload, func(h *source.HumanHandle) { ready <- h }); err != nil {
					return err
				}
				var h *source.HumanHandle
				select {
				case h = <-ready:
				case <-ctx.Done():
					return fmt.Errorf("no worker accepted the job: %w", ctx.Err())
				}
				defer h.Release()

				answers := make(chan int, 1)
				failed := make(chan struct{}, 1)
				if _, err := h.MakeQuery(ctx, queryPayload,
					func(v int) { answers <- v },
					func() { failed <- struct{}{} },
				); err != nil {
					return err
				}
				select {
				case v := <-answers:
					fmt.Fprintln(cmd.OutOrStdout(), v)
					return nil
				case <-failed:
					return errors.New("worker declined the query")
				case <-h.Disconnected():
					return errors.New("worker left before answering")
				case <-ctx.Done():
					return fmt.Errorf("query not answered: %w", ctx.Err())
				}
			})
		},
	}
	cmd.Flags().StringVar(&jobPayload, "payload", source.DefaultPayload, "job posting payload (JSON)")
	cmd.Flags().StringVar(&queryPayload, "query", source.DefaultPayload, "query payload (JSON)")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "overall wait for a worker and an answer")
	return cmd
}

func newHireCmd(load loader) *cobra.Command {
	hire := &cobra.Command{
		Use:   "hire",
		Short: "Programmatic hiring",
	}
	hire.AddCommand(
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of hireable workers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSource(cmd, load, func(ctx context.Context, s *source.HumanSource) error {
					n, err := s.NumHireable(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "post <n>",
			Short: "Post a hiring request for n workers and print the posting URL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid worker count %q", args[0])
				}
				return withSource(cmd, load, func(ctx context.Context, s *source.HumanSource) error {
					url, err := s.Hire(ctx, n)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), url)
					return nil
				})
			},
		},
	)
	return hire
}
