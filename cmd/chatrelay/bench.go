package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type benchOptions struct {
	url     string
	clients int
	turns   int
	timeout time.Duration
	format  string
}

// benchReport summarizes turn latency as seen by clients: from sending a
// chat event to receiving typing(false).
type benchReport struct {
	Clients   int     `json:"clients"`
	Turns     int     `json:"turns_per_client"`
	Completed int     `json:"completed"`
	Errors    int     `json:"errors"`
	MeanMs    float64 `json:"mean_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	MaxMs     float64 `json:"max_ms"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

func newBenchCmd() *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a running relay with concurrent clients and report turn latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/", "relay websocket URL")
	cmd.Flags().IntVar(&opts.clients, "clients", 4, "concurrent connections")
	cmd.Flags().IntVar(&opts.turns, "turns", 5, "chat turns per connection")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall benchmark timeout")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text, json")
	return cmd
}

func runBench(ctx context.Context, opts benchOptions, w io.Writer) error {
	if opts.clients < 1 || opts.turns < 1 {
		return fmt.Errorf("clients and turns must be positive")
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		failures  int
	)
	record := func(d time.Duration, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		if failed {
			failures++
			return
		}
		latencies = append(latencies, d)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.clients; i++ {
		g.Go(func() error {
			return benchClient(gctx, opts.url, i, opts.turns, record)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report := summarize(latencies, failures, opts, time.Since(start))
	if opts.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := fmt.Fprintf(w,
		"clients=%d turns=%d completed=%d errors=%d\nmean=%.1fms p50=%.1fms p95=%.1fms max=%.1fms elapsed=%.1fms\n",
		report.Clients, report.Turns, report.Completed, report.Errors,
		report.MeanMs, report.P50Ms, report.P95Ms, report.MaxMs, report.ElapsedMs)
	return err
}

func benchClient(ctx context.Context, url string, id, turns int, record func(time.Duration, bool)) error {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("client %d: connect: %w", id, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	var ev relay.Event
	if err := ws.ReadJSON(&ev); err != nil {
		return fmt.Errorf("client %d: read greeting: %w", id, err)
	}

	for turn := 0; turn < turns; turn++ {
		sent := time.Now()
		if err := ws.WriteJSON(relay.Chat(fmt.Sprintf("bench client %d turn %d", id, turn))); err != nil {
			return fmt.Errorf("client %d: send: %w", id, err)
		}

		failed := false
		for {
			if err := ws.ReadJSON(&ev); err != nil {
				return fmt.Errorf("client %d: read: %w", id, err)
			}
			if ev.Type == relay.EventError {
				failed = true
			}
			if ev.Type == relay.EventTyping && !ev.TypingState() {
				break
			}
		}
		record(time.Since(sent), failed)
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func summarize(latencies []time.Duration, failures int, opts benchOptions, elapsed time.Duration) benchReport {
	r := benchReport{
		Clients:   opts.clients,
		Turns:     opts.turns,
		Completed: len(latencies),
		Errors:    failures,
		ElapsedMs: ms(elapsed),
	}
	if len(latencies) == 0 {
		return r
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	r.MeanMs = ms(total / time.Duration(len(latencies)))
	r.P50Ms = ms(percentile(latencies, 0.50))
	r.P95Ms = ms(percentile(latencies, 0.95))
	r.MaxMs = ms(latencies[len(latencies)-1])
	return r
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
