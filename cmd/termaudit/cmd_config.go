package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/japaniel/termaudit/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect configuration files",
	}

	var (
		user bool
		dir  string
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the current settings",
		Long: `Writes termaudit.yaml into --dir with the effective settings, so later
runs from that directory pick them up. With --user, creates
~/.config/termaudit/config.yaml with the defaults instead, leaving an
existing file untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if user {
				path, err := config.NewLoader(a.logger).EnsureUserConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "User config: %s\n", path)
				return nil
			}

			path := filepath.Join(dir, config.ProjectConfigFile)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := a.cfg.SaveToFile(path); err != nil {
				return err
			}
			a.logger.Info("project config written", zap.String("path", path))
			fmt.Fprintf(out, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&user, "user", false, "Create the user-level config instead")
	initCmd.Flags().StringVar(&dir, "dir", ".", "Directory for the project config")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [file]",
		Short: "Print the effective config, or a single file over the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if len(args) == 1 {
				loaded, err := config.LoadFromFile(args[0])
				if err != nil {
					return err
				}
				if err := loaded.Validate(); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				cfg = loaded
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
