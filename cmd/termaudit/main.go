package main

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/japaniel/termaudit/pkg/config"
	"github.com/japaniel/termaudit/pkg/db"
	"github.com/japaniel/termaudit/pkg/glossary"
	"github.com/japaniel/termaudit/pkg/review"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newApp().rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand shares: flags, config, logger and the
// lazily opened store.
type app struct {
	configPath   string
	dbPath       string
	glossaryPath string
	verbose      bool

	cfg    *config.Config
	logger *zap.Logger
	conn   *sql.DB
}

func newApp() *app { return &app{} }

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "termaudit",
		Short: "Terminology consistency auditor for Bible translation projects",
		Long: `termaudit checks that every verse whose source text uses a glossary term
also uses the approved rendering of that term in the translation, and walks
the reviewer through each deviation: force the approved term, keep the
deviation with a recorded justification, or ignore it for now.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Path to the SQLite project database")
	cmd.PersistentFlags().StringVar(&a.glossaryPath, "glossary", "", "Glossary file (JSON or YAML) overriding the stored terms")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		a.importCmd(),
		a.exportCmd(),
		a.glossaryCmd(),
		a.scanCmd(),
		a.resolveCmd(),
		a.reviewCmd(),
		a.watchCmd(),
		a.historyCmd(),
		a.configCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "termaudit version %s\n", audit.Version())
			},
		},
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(a.logger).Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.glossaryPath != "" {
		cfg.Glossary.Path = a.glossaryPath
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	if a.logger == nil {
		zcfg := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
		if a.logger, err = zcfg.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	return nil
}

func (a *app) teardown() {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
		a.conn = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) db() (*sql.DB, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	conn, err := db.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("database opened", zap.String("path", a.cfg.Database.Path))
	a.conn = conn
	return conn, nil
}

// segments returns the stored segments in document order.
func (a *app) segments() ([]audit.Segment, error) {
	conn, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.ListSegments(conn)
}

// terms resolves the glossary: the configured file, else the stored terms,
// else the built-in list.
func (a *app) terms() ([]glossary.Term, error) {
	if p := a.cfg.Glossary.Path; p != "" {
		terms, err := glossary.Load(p)
		if err != nil {
			return nil, fmt.Errorf("load glossary %s: %w", p, err)
		}
		return terms, nil
	}
	conn, err := a.db()
	if err != nil {
		return nil, err
	}
	stored, err := db.ListTerms(conn)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		a.logger.Debug("no stored glossary, using built-in terms")
		return glossary.Default(), nil
	}
	terms := make([]glossary.Term, 0, len(stored))
	for _, t := range stored {
		terms = append(terms, glossary.Term{
			Pt:           t.Pt,
			Koti:         t.Koti,
			Frequency:    t.Frequency,
			Definition:   t.Definition,
			OriginalWord: t.OriginalWord,
		})
	}
	return terms, nil
}

func (a *app) memory() ([]audit.TermMemoryEntry, error) {
	terms, err := a.terms()
	if err != nil {
		return nil, err
	}
	return glossary.Memory(terms), nil
}

// recordResolution appends a workflow decision to the decision log.
func (a *app) recordResolution(r review.Resolution) error {
	conn, err := a.db()
	if err != nil {
		return err
	}
	d := db.Decision{
		SegmentID:      r.Inconsistency.VerseID,
		SourceTerm:     r.Inconsistency.SourceTerm,
		ExpectedTarget: r.Inconsistency.ExpectedTarget,
		Location:       r.Inconsistency.Location,
		Kind:           r.Decision.Kind(),
		Reviewer:       a.cfg.Review.Reviewer,
		DecidedAt:      r.At,
	}
	if le, ok := r.Decision.(review.LocalException); ok {
		d.Reason = le.Reason
	}
	id, err := db.RecordDecision(conn, d)
	if err != nil {
		return err
	}
	a.logger.Debug("decision recorded", zap.String("id", id), zap.String("kind", d.Kind))
	return nil
}

// newWorkflow wires a review workflow to the store and the decision log.
func (a *app) newWorkflow(onGlobalFix func(review.GlobalFixIntent)) (*review.Workflow, error) {
	conn, err := a.db()
	if err != nil {
		return nil, err
	}
	return review.NewWorkflow(
		review.NewRecorder(db.NewStore(conn), a.logger),
		review.WithWorkflowLogger(a.logger),
		review.WithGlobalFixHandler(onGlobalFix),
		review.WithResolutionHandler(func(r review.Resolution) {
			if err := a.recordResolution(r); err != nil {
				a.logger.Error("recording decision failed", zap.Error(err))
			}
		}),
	), nil
}
