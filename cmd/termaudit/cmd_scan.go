package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/japaniel/termaudit/pkg/db"
	"github.com/japaniel/termaudit/pkg/review"
	"github.com/japaniel/termaudit/pkg/scan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newOrchestrator builds a scan orchestrator from the loaded config.
func (a *app) newOrchestrator(reg prometheus.Registerer, handler func(scan.Result)) *scan.Orchestrator {
	opts := []scan.Option{
		scan.WithLogger(a.logger),
		scan.WithTimeout(a.cfg.Scan.Timeout),
		scan.WithWorkers(a.cfg.Scan.Workers),
		scan.WithResultHandler(handler),
	}
	if a.cfg.Scan.Parallelism > 1 {
		opts = append(opts, scan.WithEngine(scan.ParallelEngine(a.cfg.Scan.Parallelism)))
	}
	if reg != nil {
		opts = append(opts, scan.WithMetrics(scan.NewMetrics(reg)))
	}
	return scan.New(opts...)
}

// scanOnce runs a single scan of the stored project through the orchestrator.
func (a *app) scanOnce(ctx context.Context) ([]audit.Inconsistency, error) {
	segs, err := a.segments()
	if err != nil {
		return nil, err
	}
	mem, err := a.memory()
	if err != nil {
		return nil, err
	}

	results := make(chan scan.Result, 1)
	orch := a.newOrchestrator(nil, func(r scan.Result) {
		select {
		case results <- r:
		default:
		}
	})
	orch.Start(ctx)
	defer orch.Close()

	orch.Trigger(segs, mem)
	select {
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Inconsistencies, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func printFindings(out io.Writer, found []audit.Inconsistency) {
	if len(found) == 0 {
		fmt.Fprintln(out, "No inconsistencies found.")
		return
	}
	for i, inc := range found {
		fmt.Fprintf(out, "%3d. %-14s %s -> %s (%s)\n", i+1, inc.Location, inc.SourceTerm, inc.ExpectedTarget, inc.VerseID)
	}
}

func (a *app) scanCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report verses that miss the approved rendering of a glossary term",
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := a.scanOnce(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(found)
			}
			printFindings(out, found)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print findings as JSON")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "resolve [index] [global|local|ignore]",
		Short: "Resolve one finding of the current scan",
		Long: `Resolves the finding at the 1-based index printed by "scan".

  global  ask the editor to force the approved term into the verse
  local   keep the deviation; --reason (at least 10 characters) is appended
          to the verse's cultural notes
  ignore  hide the finding until the next scan`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index %q is not a number", args[0])
			}
			decision, err := parseDecisionArg(args[1], reason)
			if err != nil {
				return err
			}

			found, err := a.scanOnce(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			wf, err := a.newWorkflow(func(i review.GlobalFixIntent) {
				fmt.Fprintf(out, "Global fix requested: %s (%s) must use %q for %q\n", i.Location, i.SegmentID, i.ExpectedTarget, i.SourceTerm)
			})
			if err != nil {
				return err
			}
			wf.SetInconsistencies(found)
			if err := wf.Select(idx - 1); err != nil {
				return err
			}
			if err := wf.Resolve(decision); err != nil {
				return err
			}
			fmt.Fprintf(out, "Resolved as %s; %d finding(s) left\n", decision.Kind(), len(wf.Inconsistencies()))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Justification for a local exception")
	return cmd
}

func parseDecisionArg(arg, reason string) (review.Decision, error) {
	switch arg {
	case "global":
		return review.GlobalFix{}, nil
	case "local":
		return review.LocalException{Reason: reason}, nil
	case "ignore":
		return review.Ignore{}, nil
	default:
		return review.ParseDecision(arg, reason)
	}
}

func (a *app) historyCmd() *cobra.Command {
	var segment string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the decision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.db()
			if err != nil {
				return err
			}
			decisions, err := db.ListDecisions(conn, segment)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(decisions) == 0 {
				fmt.Fprintln(out, "No decisions recorded.")
				return nil
			}
			for _, d := range decisions {
				fmt.Fprintf(out, "%s  %-15s %-14s %s -> %s", d.DecidedAt.Local().Format("2006-01-02 15:04"), d.Kind, d.Location, d.SourceTerm, d.ExpectedTarget)
				if d.Reason != "" {
					fmt.Fprintf(out, "  %q", d.Reason)
				}
				if d.Reviewer != "" {
					fmt.Fprintf(out, "  by %s", d.Reviewer)
				}
				fmt.Fprintln(out)
			}
			a.logger.Debug("history listed", zap.Int("count", len(decisions)))
			return nil
		},
	}
	cmd.Flags().StringVar(&segment, "segment", "", "Only decisions for this segment id")
	return cmd
}
