package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ashureev/caspchat/internal/agent"
	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/interpret"
	"github.com/ashureev/caspchat/internal/protocol"
	"github.com/ashureev/caspchat/internal/solver"
	"github.com/ashureev/caspchat/internal/topic"
)

const maxLineSize = 1 << 20

type replayOptions struct {
	delimiter  string
	solverURL  string
	timeout    time.Duration
	sequential bool
	fromLog    bool
	format     string
}

// utterance is one assistant message read from the input.
type utterance struct {
	Line      int
	SessionID string
	Seq       int
	Text      string
}

// report is the replay of one utterance.
type report struct {
	Line          int               `json:"line"`
	SessionID     string            `json:"session_id,omitempty"`
	Seq           int               `json:"seq,omitempty"`
	Reply         string            `json:"reply"`
	ReplyFallback bool              `json:"reply_fallback,omitempty"`
	Statuses      []protocol.Status `json:"statuses"`
	Answers       []solver.Result   `json:"answers,omitempty"`
	Outcomes      []domain.Outcome  `json:"outcomes,omitempty"`
}

func newRootCmd() *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay assistant utterances through the status protocol",
		Long: `Reads one assistant utterance per line (or a conversation log with --log)
and prints the segments, gate verdicts and, with --solver-url, the solver
answers and their interpreted outcomes. Reads stdin when no file is given.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runReplay(cmd.Context(), in, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.delimiter, "delimiter", string(protocol.DefaultDelimiter), "status segment delimiter")
	flags.StringVar(&opts.solverURL, "solver-url", "", "solver endpoint; ready queries are dispatched when set")
	flags.DurationVar(&opts.timeout, "timeout", 15*time.Second, "per-query solver timeout")
	flags.BoolVar(&opts.sequential, "sequential", false, "dispatch ready queries one at a time")
	flags.BoolVar(&opts.fromLog, "log", false, "input is an NDJSON conversation log")
	flags.StringVar(&opts.format, "format", "text", "output format: text or json")
	return cmd
}

func runReplay(ctx context.Context, in io.Reader, out io.Writer, opts *replayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delim, size := utf8.DecodeRuneInString(opts.delimiter)
	if delim == utf8.RuneError || size != len(opts.delimiter) {
		return fmt.Errorf("delimiter must be a single character, got %q", opts.delimiter)
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	utterances, err := readUtterances(in, opts.fromLog)
	if err != nil {
		return err
	}

	registry := topic.Default()
	gate := protocol.NewGate(registry)
	interpreter := interpret.New(registry)

	var dispatcher *solver.Dispatcher
	if opts.solverURL != "" {
		mode := solver.ModeConcurrent
		if opts.sequential {
			mode = solver.ModeSequential
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		dispatcher = solver.NewDispatcher(
			solver.NewClient(opts.solverURL, &http.Client{}),
			solver.Options{Mode: mode, Timeout: opts.timeout},
			logger,
			nil,
		)
	}

	enc := json.NewEncoder(out)
	for _, u := range utterances {
		turn := protocol.Segment(u.Text, delim)
		rep := report{
			Line:          u.Line,
			SessionID:     u.SessionID,
			Seq:           u.Seq,
			Reply:         turn.Reply,
			ReplyFallback: turn.ReplyFallback,
			Statuses:      gate.EvaluateAll(turn.Segments),
		}
		if dispatcher != nil {
			rep.Answers = dispatcher.Dispatch(ctx, protocol.Ready(rep.Statuses))
			rep.Outcomes = interpreter.InterpretAll(rep.Answers)
		}

		if opts.format == "json" {
			if err := enc.Encode(rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			continue
		}
		if err := writeText(out, rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

// readUtterances reads plain utterances, one per non-blank line, or the
// assistant messages of a conversation log.
func readUtterances(in io.Reader, fromLog bool) ([]utterance, error) {
	var out []utterance
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if !fromLog {
			out = append(out, utterance{Line: line, Text: text})
			continue
		}

		var ev agent.ConversationLogEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, fmt.Errorf("line %d: decode log event: %w", line, err)
		}
		if ev.EventType != "assistant_message" || ev.ContentRaw == "" {
			continue
		}
		out = append(out, utterance{Line: line, SessionID: ev.SessionID, Seq: ev.Seq, Text: ev.ContentRaw})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return out, nil
}

func writeText(w io.Writer, rep report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d", rep.Line)
	if rep.SessionID != "" {
		fmt.Fprintf(&b, " session %s round %d", rep.SessionID, rep.Seq)
	}
	b.WriteString("\n")
	for _, st := range rep.Statuses {
		if st.Ready {
			fmt.Fprintf(&b, "  ready    %-14s %s\n", st.Topic, st.Literal)
			continue
		}
		fmt.Fprintf(&b, "  pending  %-14s %s (%s)\n", st.Topic, strings.TrimSpace(st.Raw), st.Reason)
	}
	for _, o := range rep.Outcomes {
		line := o.Line
		if line == "" {
			line = o.Note
		}
		fmt.Fprintf(&b, "  outcome  %-14s %s\n", o.Topic, line)
	}
	reply := rep.Reply
	if rep.ReplyFallback {
		reply += " (fallback)"
	}
	fmt.Fprintf(&b, "  reply    %s\n", strings.TrimSpace(reply))
	_, err := io.WriteString(w, b.String())
	return err
}
