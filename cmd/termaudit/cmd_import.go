package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/japaniel/termaudit/pkg/db"
	"github.com/japaniel/termaudit/pkg/glossary"
	"github.com/japaniel/termaudit/pkg/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) importCmd() *cobra.Command {
	var (
		book       string
		chapter    int
		targetPath string
		pageURL    string
		batchSize  int
	)
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import chapter segments into the project database",
		Long: `Imports segments from:
  - a JSON segments document (.json)
  - verse-numbered plain text (.txt), paired with --target for the translation
  - a saved chapter page (.html), source text only unless --target is given

Re-importing a segment replaces its texts but keeps its cultural notes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segs, err := readSegments(args[0], targetPath, pageURL, book, chapter)
			if err != nil {
				return err
			}
			conn, err := a.db()
			if err != nil {
				return err
			}
			n, err := db.ImportSegments(cmd.Context(), conn, segs, batchSize, a.logger)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			a.logger.Info("segments imported", zap.String("file", args[0]), zap.Int("count", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d segments\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&book, "book", "Zapuura", "Book name used in location labels")
	cmd.Flags().IntVar(&chapter, "chapter", 1, "Chapter number used in location labels")
	cmd.Flags().StringVar(&targetPath, "target", "", "Verse-numbered translation text to pair with the source")
	cmd.Flags().StringVar(&pageURL, "url", "http://localhost/", "Original URL of an HTML page")
	cmd.Flags().IntVar(&batchSize, "batch", 50, "Segments per transaction")
	return cmd
}

func readSegments(path, targetPath, pageURL, book string, chapter int) ([]audit.Segment, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return source.LoadSegments(path)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		ch, err := source.FromHTML(f, pageURL, book, chapter)
		if err != nil {
			return nil, err
		}
		if targetPath == "" {
			return ch.Segments, nil
		}
		target, err := os.ReadFile(targetPath)
		if err != nil {
			return nil, err
		}
		return source.Align(ch.Text, string(target), book, chapter), nil
	default:
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if targetPath == "" {
			return source.SplitVerses(string(text), book, chapter), nil
		}
		target, err := os.ReadFile(targetPath)
		if err != nil {
			return nil, err
		}
		return source.Align(string(text), string(target), book, chapter), nil
	}
}

func (a *app) glossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Manage the approved term list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Store the terms of a JSON or YAML glossary file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := glossary.Load(args[0])
			if err != nil {
				return err
			}
			conn, err := a.db()
			if err != nil {
				return err
			}
			stored, skipped := 0, 0
			for _, t := range terms {
				if !t.Valid() {
					skipped++
					continue
				}
				if _, err := db.UpsertTerm(conn, db.Term{
					Pt:           t.Pt,
					Koti:         t.Target(),
					Frequency:    t.Frequency,
					Definition:   t.Definition,
					OriginalWord: t.OriginalWord,
				}); err != nil {
					return err
				}
				stored++
			}
			a.logger.Info("glossary imported", zap.Int("stored", stored), zap.Int("skipped", skipped))
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d terms (%d skipped)\n", stored, skipped)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the term memory used by scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := a.memory()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range mem {
				fmt.Fprintf(out, "%-20s %-20s %5d\n", m.SourceTerm, m.TargetTerm, m.Frequency)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "recount",
		Short: "Recompute term frequencies from the stored translation",
		RunE: func(cmd *cobra.Command, args []string) error {
			segs, err := a.segments()
			if err != nil {
				return err
			}
			terms, err := a.terms()
			if err != nil {
				return err
			}
			conn, err := a.db()
			if err != nil {
				return err
			}
			for _, t := range glossary.CountUsage(segs, terms) {
				if !t.Valid() {
					continue
				}
				if _, err := db.UpsertTerm(conn, db.Term{
					Pt:           t.Pt,
					Koti:         t.Target(),
					Frequency:    t.Frequency,
					Definition:   t.Definition,
					OriginalWord: t.OriginalWord,
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %5d\n", t.Pt, t.Frequency)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "lookup [term]",
		Short: "Show the approved renderings of a source term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			ix := glossary.NewIndex(terms)
			out := cmd.OutOrStdout()
			found := ix.Lookup(args[0])
			if len(found) == 0 {
				fmt.Fprintf(out, "%q is not in the glossary (%d source terms)\n", args[0], ix.Len())
				return nil
			}
			for _, t := range found {
				fmt.Fprintf(out, "%s -> %s (%d)", t.Pt, t.Target(), t.Frequency)
				if t.OriginalWord != "" {
					fmt.Fprintf(out, "  [%s]", t.OriginalWord)
				}
				if t.Definition != "" {
					fmt.Fprintf(out, "  %s", t.Definition)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Write the active glossary to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			sorted := glossary.NewIndex(terms).Terms()
			if err := glossary.Save(args[0], sorted); err != nil {
				return err
			}
			a.logger.Info("glossary exported", zap.String("file", args[0]), zap.Int("count", len(sorted)))
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d terms\n", len(sorted))
			return nil
		},
	})
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		book    string
		chapter int
	)
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the stored segments to a JSON segments document",
		Long: `Writes the stored segments, cultural notes included, as a JSON document
that "import" and "watch --segments" accept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segs, err := a.segments()
			if err != nil {
				return err
			}
			doc := source.Document{Book: book, Chapter: chapter, Segments: segs}
			if err := source.SaveSegments(args[0], doc); err != nil {
				return err
			}
			a.logger.Info("segments exported", zap.String("file", args[0]), zap.Int("count", len(segs)))
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d segments\n", len(segs))
			return nil
		},
	}
	cmd.Flags().StringVar(&book, "book", "", "Book name recorded in the document")
	cmd.Flags().IntVar(&chapter, "chapter", 0, "Chapter number recorded in the document")
	return cmd
}
