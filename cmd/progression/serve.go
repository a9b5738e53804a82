package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	es "github.com/terraskye/progression"
)

const maxLine = 1 << 20

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Dispatch commands read from stdin, one JSON envelope per line",
		Long: `Reads command envelopes from stdin, one per line:

  {"metadata":{"name":"progression.list-hearing","correlationId":"c-1"},"payload":{...}}

and writes one JSON result per command to stdout, in input order. A missing
command id is generated; a missing correlation id defaults to the command id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.WithoutCancel(ctx)); err != nil {
					logger.WithError(err).Error("Shutdown failed")
				}
			}()

			logger.WithFields(logrus.Fields{
				"store":    cfg.Store.Backend,
				"commands": len(a.router.Names()),
			}).Info("Ready")
			return serve(ctx, a.bus, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// resultLine is written for every command read.
type resultLine struct {
	CommandID  string `json:"commandId,omitempty"`
	Command    string `json:"command,omitempty"`
	Successful bool   `json:"successful"`
	Outcome    string `json:"outcome,omitempty"`
	StreamID   string `json:"streamId,omitempty"`
	Version    uint64 `json:"version,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

type dispatcher interface {
	Dispatch(ctx context.Context, cmd es.RawCommand) (es.AppendResult, error)
}

// serve dispatches every line of in until EOF or ctx is done. Lines are
// handled one at a time so a command always observes the effects of the
// lines before it.
func serve(ctx context.Context, d dispatcher, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := enc.Encode(handleLine(ctx, d, line)); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return nil
}

func handleLine(ctx context.Context, d dispatcher, line []byte) resultLine {
	var cmd es.RawCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		return resultLine{Kind: "envelope", Error: fmt.Sprintf("decode command: %v", err)}
	}
	if cmd.Metadata.ID == uuid.Nil {
		cmd.Metadata.ID = uuid.New()
	}
	if cmd.Metadata.CorrelationID == "" {
		cmd.Metadata.CorrelationID = cmd.Metadata.ID.String()
	}

	out := resultLine{CommandID: cmd.Metadata.ID.String(), Command: cmd.Metadata.Name}
	result, err := d.Dispatch(ctx, cmd)
	if err != nil {
		out.Kind = errorKind(err)
		out.Error = err.Error()
		out.StreamID = result.StreamID
		if !errors.Is(err, es.ErrPublish) {
			return out
		}
		// the events are committed, only their publication failed
	}
	out.Successful = result.Successful
	out.Outcome = result.Outcome.String()
	out.StreamID = result.StreamID
	out.Version = result.NextExpectedVersion
	return out
}

func errorKind(err error) string {
	kinds := []struct {
		target error
		name   string
	}{
		{es.ErrResolution, "resolution"},
		{es.ErrRehydration, "rehydration"},
		{es.ErrMutation, "mutation"},
		{es.ErrConflict, "conflict"},
		{es.ErrAppend, "append"},
		{es.ErrUnknownCommand, "unknown-command"},
		{es.ErrInvalidPayload, "invalid-payload"},
		{es.ErrBusStopped, "stopped"},
		{es.ErrPublish, "publish"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.name
		}
	}
	return "internal"
}
