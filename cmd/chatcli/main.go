// Command chatcli is a terminal client for the chat service.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	historySize int
	chatSession string
	chatRAG     bool
	chatTopK    int
	sessionMeta []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal client for the chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("CHATBOT_URL", "http://localhost:8080"), "chat service base URL")

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMeta(sessionMeta)
			if err != nil {
				return err
			}
			sess, err := newAPIClient(serverURL).createSession(cmd.Context(), meta)
			if err != nil {
				return err
			}
			fmt.Println(sess.SessionID)
			return nil
		},
	}
	createCmd.Flags().StringSliceVar(&sessionMeta, "meta", nil, "metadata as key=value, repeatable")
	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(serverURL).deleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(dimStyle.Render("deleted " + args[0]))
			return nil
		},
	}
	sessionCmd.AddCommand(createCmd, deleteCmd)

	historyCmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the message history of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(serverURL).history(cmd.Context(), args[0], historySize)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), resp.Messages)
			return nil
		},
	}
	historyCmd.Flags().IntVar(&historySize, "limit", 50, "maximum number of messages")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively over WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), chatOptions{
				sessionID: chatSession,
				useRAG:    chatRAG,
				topK:      chatTopK,
			})
		},
	}
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (a new session is created when empty)")
	chatCmd.Flags().BoolVar(&chatRAG, "rag", false, "ground answers in indexed documents")
	chatCmd.Flags().IntVar(&chatTopK, "top-k", 0, "number of passages to retrieve (0 = server default)")

	root.AddCommand(sessionCmd, historyCmd, chatCmd)
	return root
}

func parseMeta(pairs []string) (map[string]interface{}, error) {
	meta := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
