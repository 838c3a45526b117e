// SENTIENCE CLI - talk to the assistant from a terminal.
package main

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	serverURL      string
	conversationID string

	version = "3.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sn",
		Short: "SENTIENCE - your personal AI core",
		Long: `sn talks to a running SENTIENCE daemon.

Ask one-off questions, chat with streamed answers, switch the
personality mode or check on the daemon.`,
	}

	defaultServer := os.Getenv("SENTIENCE_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:5000"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "daemon URL")
	rootCmd.PersistentFlags().StringVarP(&conversationID, "conversation", "c", "", "conversation id")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(modeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// askCmd sends a single prompt
func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Reply  string `json:"reply"`
				Intent string `json:"intent"`
			}
			err := newClient(serverURL).do(http.MethodPost, "/api/ai/ask", map[string]string{
				"prompt":         strings.Join(args, " "),
				"conversationId": conversationID,
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Println(resp.Reply)
			return nil
		},
	}
}

// chatCmd runs an interactive session with streamed answers
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively",
		Long: `Reads prompts line by line and streams each answer as it is generated.
A new conversation is created unless --conversation is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(serverURL)
			interactive := term.IsTerminal(int(os.Stdin.Fd()))

			id := conversationID
			if id == "" {
				var conv struct {
					ID string `json:"id"`
				}
				if err := c.do(http.MethodPost, "/api/conversations", nil, &conv); err != nil {
					return err
				}
				id = conv.ID
			}

			if interactive {
				fmt.Printf("🧠 SENTIENCE chat (%s). Ctrl-D to exit.\n\n", id)
			}

			reader := bufio.NewScanner(os.Stdin)
			for {
				if interactive {
					fmt.Print("› ")
				}
				if !reader.Scan() {
					break
				}
				prompt := strings.TrimSpace(reader.Text())
				if prompt == "" {
					continue
				}

				_, err := c.stream(prompt, id, func(tok string) {
					fmt.Print(tok)
				})
				fmt.Println()
				if err != nil {
					fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
				}
				if interactive {
					fmt.Println()
				}
			}
			return reader.Err()
		},
	}
}

// modeCmd shows or switches the personality mode
func modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [core|analyst|creative|cyber|tutor|dev]",
		Short: "Show or set the personality mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(serverURL)

			var resp struct {
				Mode        string `json:"mode"`
				Personality string `json:"personality"`
				Message     string `json:"message"`
			}
			if len(args) == 0 {
				path := "/api/ai/mode"
				if conversationID != "" {
					path += "?conversationId=" + url.QueryEscape(conversationID)
				}
				if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
					return err
				}
				fmt.Printf("🎭 Mode: %s\n   %s\n", strings.ToUpper(resp.Mode), resp.Personality)
				return nil
			}

			err := c.do(http.MethodPost, "/api/ai/mode", map[string]string{
				"mode":           args[0],
				"conversationId": conversationID,
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Printf("🔄 %s: %s\n", resp.Message, strings.ToUpper(resp.Mode))
			return nil
		},
	}
}

// statusCmd shows daemon status
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st struct {
				Status       string          `json:"status"`
				Version      string          `json:"version"`
				Uptime       string          `json:"uptime"`
				Model        string          `json:"model"`
				MemoryUsage  float64         `json:"memoryUsage"`
				Providers    map[string]bool `json:"providers"`
				MessageCount int64           `json:"messageCount"`
				FileCount    int             `json:"fileCount"`
			}
			if err := newClient(serverURL).do(http.MethodGet, "/api/status/core", nil, &st); err != nil {
				return err
			}

			fmt.Printf("🧠 SENTIENCE %s - %s\n\n", st.Version, st.Status)
			fmt.Printf("   Uptime: %s\n", st.Uptime)
			fmt.Printf("   Models: %s\n", st.Model)
			fmt.Printf("   Memory: %.1f MB\n", st.MemoryUsage)
			names := make([]string, 0, len(st.Providers))
			for name := range st.Providers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				icon := "✅"
				if !st.Providers[name] {
					icon = "❌"
				}
				fmt.Printf("   %s %s\n", icon, name)
			}
			fmt.Printf("\n   💬 Messages: %d\n", st.MessageCount)
			fmt.Printf("   📄 Files: %d\n", st.FileCount)
			return nil
		},
	}
}

// versionCmd shows version info
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sn %s\n", version)
		},
	}
}
