package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harunnryd/interviewer/pkg/interviewer"
	"github.com/harunnryd/interviewer/pkg/transports"
	transportmock "github.com/harunnryd/interviewer/pkg/transports/mock"
	"github.com/spf13/cobra"
)

type runOptions struct {
	stdin bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one interview",
		Long: `Run one interview session. By default the participant connects over the
configured transport. With --stdin every input line is a participant
utterance, "/hangup" ends the call and "/barge" simulates the participant
talking over the interviewer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInterview(ctx, cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read participant utterances from standard input")
	return cmd
}

func runInterview(ctx context.Context, cfg interviewer.Config, opts *runOptions, in io.Reader, out io.Writer) error {
	engineOpts := interviewer.EngineOptions{
		Config:    cfg,
		Providers: interviewer.DefaultProviders(out),
		BannerOut: out,
	}
	var local *transportmock.Transport
	if opts.stdin {
		local = transportmock.New()
		engineOpts.Transport = local
	}
	engine, err := interviewer.NewEngine(engineOpts)
	if err != nil {
		return err
	}
	if local != nil {
		go pumpLines(in, local)
	}
	return engine.Run(ctx)
}

// pumpLines turns input lines into participant messages until EOF or /hangup.
func pumpLines(in io.Reader, tr *transportmock.Transport) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/hangup", "/quit":
			tr.Push(transports.Message{Type: transports.MessageHangup})
			return
		case "/barge":
			tr.Push(transports.Message{Type: transports.MessageSpeechStarted})
			continue
		}
		if !tr.Push(transports.Message{Type: transports.MessageTranscript, Text: line}) {
			return
		}
	}
	tr.Push(transports.Message{Type: transports.MessageHangup})
}
