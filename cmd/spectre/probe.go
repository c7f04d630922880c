package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/spectre/internal/protocol"
)

type probeOptions struct {
	baseURL     string
	userID      string
	provider    string
	model       string
	turns       int
	turnTimeout time.Duration
	texts       []string
	verbose     bool
}

type probeReport struct {
	UserID    string
	Latencies []time.Duration
	Errors    []string
}

func (r probeReport) percentile(q float64) time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), r.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted)-1) + 0.5)
	return sorted[idx]
}

func probeCmd() *cobra.Command {
	var opts probeOptions
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Drive chat turns against a running gateway and report latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.turns <= 0 {
				return fmt.Errorf("--turns must be > 0")
			}
			if len(opts.texts) == 0 {
				opts.texts = []string{"hello", "what can you do?", "deploy my app"}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(opts.turns+1)*opts.turnTimeout)
			defer cancel()

			report, err := runProbe(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user=%s turns=%d errors=%d p50=%s p95=%s\n",
				report.UserID, len(report.Latencies), len(report.Errors),
				report.percentile(0.5).Round(time.Millisecond), report.percentile(0.95).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:3000", "Gateway base URL")
	cmd.Flags().StringVar(&opts.userID, "user", "", "User id to identify as (blank generates one)")
	cmd.Flags().StringVar(&opts.provider, "provider", "mock", "Provider id")
	cmd.Flags().StringVar(&opts.model, "model", "probe", "Model id")
	cmd.Flags().IntVar(&opts.turns, "turns", 3, "Number of chat turns")
	cmd.Flags().DurationVar(&opts.turnTimeout, "turn-timeout", 90*time.Second, "Max wait for each reply")
	cmd.Flags().StringSliceVar(&opts.texts, "text", nil, "Message text (repeatable, cycled)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every frame")
	return cmd
}

func runProbe(ctx context.Context, opts probeOptions, logw io.Writer) (probeReport, error) {
	wsURL, err := wsURLFor(opts.baseURL)
	if err != nil {
		return probeReport{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return probeReport{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	identify := protocol.Identify{Type: protocol.TypeIdentify, UserID: opts.userID}
	if err := conn.WriteJSON(identify); err != nil {
		return probeReport{}, fmt.Errorf("send identify: %w", err)
	}
	var ack protocol.Identified
	if err := conn.ReadJSON(&ack); err != nil {
		return probeReport{}, fmt.Errorf("await identified: %w", err)
	}
	if ack.Type != protocol.TypeIdentified {
		return probeReport{}, fmt.Errorf("expected identified frame, got %q", ack.Type)
	}

	report := probeReport{UserID: ack.UserID}
	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		if opts.verbose {
			fmt.Fprintf(logw, "probe: turn %d/%d text=%q\n", i+1, opts.turns, text)
		}

		start := time.Now()
		chat := protocol.Chat{Type: protocol.TypeChat, Provider: opts.provider, Model: opts.model, UserMessage: text}
		if err := conn.WriteJSON(chat); err != nil {
			return report, fmt.Errorf("turn %d send chat: %w", i+1, err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(opts.turnTimeout))
		var frame struct {
			Type    protocol.MessageType `json:"type"`
			Text    string               `json:"text"`
			Message string               `json:"message"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return report, fmt.Errorf("turn %d await reply: %w", i+1, err)
		}
		elapsed := time.Since(start)

		switch frame.Type {
		case protocol.TypeResponse:
			report.Latencies = append(report.Latencies, elapsed)
			if opts.verbose {
				fmt.Fprintf(logw, "probe: reply in %s: %s\n", elapsed.Round(time.Millisecond), frame.Text)
			}
		case protocol.TypeError:
			report.Errors = append(report.Errors, frame.Message)
			if opts.verbose {
				fmt.Fprintf(logw, "probe: error: %s\n", frame.Message)
			}
		default:
			return report, fmt.Errorf("turn %d unexpected frame %q", i+1, frame.Type)
		}
	}
	return report, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
