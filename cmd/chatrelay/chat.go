package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/gorilla/websocket"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal client for a running relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), url, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/", "relay websocket URL")
	return cmd
}

func runChat(ctx context.Context, url string, out io.Writer) error {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect %s: %s: %w", url, resp.Status, err)
		}
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer ws.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var ev relay.Event
			if err := ws.ReadJSON(&ev); err != nil {
				return
			}
			if line := formatEvent(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		text, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if text == "/quit" {
			break
		}
		line.AppendHistory(text)

		select {
		case <-readerDone:
			return errors.New("connection closed by server")
		default:
		}
		if err := ws.WriteJSON(relay.Chat(text)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

// formatEvent renders an inbound event for the terminal. Events that need
// no output yield "".
func formatEvent(ev relay.Event) string {
	switch ev.Type {
	case relay.EventConnected:
		return "* " + ev.Message
	case relay.EventTyping:
		if ev.TypingState() {
			return "..."
		}
		return ""
	case relay.EventMessage:
		return "assistant: " + ev.Content
	case relay.EventError:
		return "error: " + ev.Message
	default:
		return ""
	}
}
