package main

import (
	"fmt"
	"io"

	"github.com/harunnryd/interviewer/pkg/interview"
	"github.com/spf13/cobra"
)

func newScriptCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "script",
		Short: "Print the resolved stage scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			plan, err := cfg.Plan()
			if err != nil {
				return err
			}
			t := cfg.Timing()
			fmt.Fprintf(cmd.OutOrStdout(), "Timing: idle %s, re-ask %s, tick %s, min words %d\n\n",
				t.IdleTimeout, t.Q1SkipTimeout, t.TickInterval, t.MinAnswerWords)
			for i, def := range plan {
				printStage(cmd.OutOrStdout(), i+1, def)
			}
			return nil
		},
	}
}

func printStage(w io.Writer, n int, def interview.StageDefinition) {
	s := def.Script
	fmt.Fprintf(w, "%d. %s\n", n, s)
	fmt.Fprintf(w, "  greeting: %s\n", s.Greeting)
	fmt.Fprintf(w, "  ack_q1:   %s\n", s.AckQ1)
	fmt.Fprintf(w, "  ack_q2:   %s\n", s.AckQ2)
	fmt.Fprintf(w, "  nudge_q1: %s\n", s.NudgeQ1)
	fmt.Fprintf(w, "  nudge_q2: %s\n", s.NudgeQ2)
	fmt.Fprintf(w, "  reask_q1: %s\n", s.ReaskQ1)
	if exp, ok := def.Stage.(interview.ExperienceStage); ok {
		fmt.Fprintf(w, "  close/answered: %s\n", exp.Closing.Answered)
		fmt.Fprintf(w, "  close/idle:     %s\n", exp.Closing.Idle)
		fmt.Fprintf(w, "  close/timeout:  %s\n", exp.Closing.Timeout)
	}
	fmt.Fprintln(w)
}
