package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/japaniel/termaudit/pkg/glossary"
	"github.com/japaniel/termaudit/pkg/review"
	"github.com/japaniel/termaudit/pkg/scan"
	"github.com/japaniel/termaudit/pkg/source"
	"github.com/japaniel/termaudit/pkg/tui"
	"github.com/japaniel/termaudit/pkg/watch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review findings interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			wf, err := a.newWorkflow(func(i review.GlobalFixIntent) {
				a.logger.Info("global fix requested",
					zap.String("segment", i.SegmentID),
					zap.String("term", i.SourceTerm),
					zap.String("expected", i.ExpectedTarget))
			})
			if err != nil {
				return err
			}

			results := make(chan scan.Result, 8)
			orch := a.newOrchestrator(nil, func(r scan.Result) {
				select {
				case results <- r:
				case <-ctx.Done():
				}
			})
			orch.Start(ctx)
			defer func() {
				cancel()
				orch.Close()
			}()

			ix := glossary.NewIndex(nil)
			rescan := func() {
				segs, terms, err := a.loadStored()
				if err != nil {
					a.logger.Error("reload before rescan failed", zap.Error(err))
					return
				}
				ix.Replace(terms)
				orch.Trigger(segs, glossary.Memory(terms))
			}
			rescan()

			model := tui.New(wf, results, tui.WithRescan(rescan), tui.WithGlossary(ix))
			p := tea.NewProgram(model,
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
}

func (a *app) loadStored() ([]audit.Segment, []glossary.Term, error) {
	segs, err := a.segments()
	if err != nil {
		return nil, nil, err
	}
	terms, err := a.terms()
	if err != nil {
		return nil, nil, err
	}
	return segs, terms, nil
}

func (a *app) watchCmd() *cobra.Command {
	var (
		segmentsPath string
		metricsAddr  string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan whenever the segments or glossary file changes",
		Long: `Watches a JSON segments document (and the configured glossary file) and
prints the findings after every change. Bursts of saves are debounced into a
single rescan, and a rescan started while another runs supersedes it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if segmentsPath == "" {
				return fmt.Errorf("--segments is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			reg := prometheus.NewRegistry()
			orch := a.newOrchestrator(reg, func(r scan.Result) {
				if r.Err != nil {
					fmt.Fprintf(out, "[scan %d] failed: %v\n", r.Seq, r.Err)
					return
				}
				fmt.Fprintf(out, "[scan %d] %d finding(s) in %s\n", r.Seq, len(r.Inconsistencies), r.Duration.Round(time.Millisecond))
				printFindings(out, r.Inconsistencies)
			})
			orch.Start(ctx)
			defer orch.Close()

			files := []string{segmentsPath}
			if a.cfg.Glossary.Path != "" {
				files = append(files, a.cfg.Glossary.Path)
			}
			reload := func(context.Context) ([]audit.Segment, []audit.TermMemoryEntry, error) {
				segs, err := source.LoadSegments(segmentsPath)
				if err != nil {
					return nil, nil, err
				}
				mem, err := a.memory()
				if err != nil {
					return nil, nil, err
				}
				return segs, mem, nil
			}
			w, err := watch.New(files, a.cfg.Watch.Debounce, reload, orch, a.logger)
			if err != nil {
				return err
			}
			defer w.Stop()
			if err := w.Start(ctx); err != nil {
				return err
			}

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
			}

			if err := w.Rescan(ctx); err != nil {
				fmt.Fprintf(out, "initial scan skipped: %v\n", err)
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&segmentsPath, "segments", "", "JSON segments document to watch")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}
