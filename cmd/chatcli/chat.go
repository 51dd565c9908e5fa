package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	roleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type chatOptions struct {
	sessionID string
	useRAG    bool
	topK      int
}

// frame is any message the server sends on the chat socket.
type frame struct {
	Type       string                        `json:"type"`
	RequestID  string                        `json:"request_id"`
	SessionID  string                        `json:"session_id"`
	Content    string                        `json:"content"`
	Code       string                        `json:"code"`
	Message    string                        `json:"message"`
	RAGContext []domain.RetrievedContextItem `json:"rag_context"`
}

// wsURL turns the service base URL into the chat socket URL.
func wsURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/chat"
}

func runChat(ctx context.Context, opts chatOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if opts.sessionID == "" {
		sess, err := newAPIClient(serverURL).createSession(ctx, nil)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		opts.sessionID = sess.SessionID
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(serverURL), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Println(dimStyle.Render("session " + opts.sessionID))
	fmt.Println(dimStyle.Render("Type a message and press Enter to send. /quit to exit."))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			return nil
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" {
			fmt.Println("Bye!")
			return nil
		}

		if err := sendChat(conn, opts, input); err != nil {
			return err
		}
		if err := readReply(os.Stdout, conn); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func sendChat(conn *websocket.Conn, opts chatOptions, input string) error {
	msg := map[string]interface{}{
		"type":       "chat",
		"request_id": fmt.Sprintf("req_%d", time.Now().UnixNano()),
		"session_id": opts.sessionID,
		"message":    input,
		"use_rag":    opts.useRAG,
	}
	if opts.topK > 0 {
		msg["top_k"] = opts.topK
	}
	return conn.WriteJSON(msg)
}

// readReply prints one streamed reply, returning after the done or error frame.
func readReply(w io.Writer, conn *websocket.Conn) error {
	fmt.Fprint(w, roleStyle.Render("assistant: "))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Type {
		case "token":
			fmt.Fprint(w, f.Content)
		case "complete":
			fmt.Fprintln(w)
			for _, item := range f.RAGContext {
				fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  source: %s (%.2f)", item.DocumentTitle, item.SimilarityScore)))
			}
		case "error":
			fmt.Fprintln(w)
			msg := f.Message
			if f.Code != "" {
				msg = f.Code + ": " + msg
			}
			fmt.Fprintln(w, errorStyle.Render(msg))
			if f.Code != "" {
				// Rejected before streaming; no done frame follows.
				return nil
			}
		case "done":
			return nil
		}
	}
}

func printHistory(w io.Writer, newestFirst []domain.Message) {
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := newestFirst[i]
		fmt.Fprintf(w, "%s %s\n%s\n\n",
			roleStyle.Render(string(m.Role)),
			dimStyle.Render(m.CreatedAt.Local().Format(time.DateTime)),
			m.Content)
	}
}
