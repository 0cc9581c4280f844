package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/harunnryd/interviewer/pkg/interviewer"
	"github.com/harunnryd/interviewer/pkg/runner"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "interviewer",
		Short: "Scripted spoken interview coordinator",
		Long: `interviewer runs a scripted, multi-stage spoken interview. It greets the
participant, nudges when they go quiet, asks again when a question stays
unanswered and moves from stage to stage until the interview is over.`,
		Version:       runner.EngineVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv(".env.local", ".env")
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (defaults and INTERVIEW_* env when empty)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newScriptCmd(opts))
	return cmd
}

func (o *rootOptions) load() (interviewer.Config, error) {
	return interviewer.LoadConfig(o.configPath)
}

// loadDotEnv loads env files in order. Earlier files win; missing files are skipped.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("dotenv_load_failed", "file", f, "error", err)
		}
	}
}
