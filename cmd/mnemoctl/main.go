// mnemoctl is an operator CLI for inspecting and seeding a memory
// store file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hollowbrook/mnemo/memory"
	"github.com/hollowbrook/mnemo/memory/embedder/mock"
	"github.com/hollowbrook/mnemo/memory/embedder/openai"
	"github.com/hollowbrook/mnemo/memory/store/sqlite"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "mnemoctl",
	Short: "Inspect and seed agent memory stores",
	Long:  "Operator CLI for the mnemo memory engine. Save, list and search conversation chunks in a SQLite store file.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MNEMO_DB or ~/.mnemo/memory.db)")
	rootCmd.AddCommand(saveCmd(), listCmd(), searchCmd(), findCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MNEMO_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo", "memory.db")
}

func openStore() (*sqlite.Store, error) {
	return sqlite.New(resolveDBPath())
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// embedderFromEnv returns the OpenAI-compatible embedder when
// configured, nil otherwise (chunks then save without vectors).
func embedderFromEnv() memory.Embedder {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return openai.New(os.Getenv("MNEMO_EMBED_URL"), key, os.Getenv("MNEMO_EMBED_MODEL"), 0)
	}
	return nil
}

func saveCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "save [session-id] [text...]",
		Short: "Save a memory chunk",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openStore()
			if err != nil {
				exitErr("open store", err)
			}
			defer s.Close()

			sessionID := args[0]
			text := strings.Join(args[1:], " ")

			if agentID != "" {
				if err := s.RegisterSession(cmd.Context(), sessionID, agentID); err != nil {
					exitErr("register session", err)
				}
			}

			recorder := memory.NewRecorder(s, embedderFromEnv())
			chunk, err := recorder.Save(cmd.Context(), agentID, sessionID, text, nil)
			if err != nil {
				exitErr("save", err)
			}
			printJSON(chunk)
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent owning the session")
	return cmd
}

func listCmd() *cobra.Command {
	var agentID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list [session-id]",
		Short: "List chunks for a session or agent",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openStore()
			if err != nil {
				exitErr("open store", err)
			}
			defer s.Close()

			var chunks []memory.Chunk
			switch {
			case len(args) == 1:
				chunks, err = s.LoadForSession(cmd.Context(), args[0], limit)
			case agentID != "":
				chunks, err = s.LoadForAgent(cmd.Context(), agentID, limit)
			default:
				exitErr("list", fmt.Errorf("a session id or --agent is required"))
			}
			if err != nil {
				exitErr("list", err)
			}
			printJSON(chunks)
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "List across all sessions of an agent")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Max results")
	return cmd
}

func searchCmd() *cobra.Command {
	var sessionID string
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search chunk text by keyword",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openStore()
			if err != nil {
				exitErr("open store", err)
			}
			defer s.Close()

			chunks, err := s.Search(cmd.Context(), sessionID, strings.Join(args, " "), limit)
			if err != nil {
				exitErr("search", err)
			}
			printJSON(chunks)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Restrict to one session")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Max results")
	return cmd
}

func findCmd() *cobra.Command {
	var agentID string
	var topK int
	var threshold float64
	cmd := &cobra.Command{
		Use:   "find [query...]",
		Short: "Find similar chunks by embedding",
		Long:  "Embeds the query and ranks an agent's chunks by cosine similarity. Without embedding credentials a deterministic mock embedder is used, which only matches chunks saved the same way.",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openStore()
			if err != nil {
				exitErr("open store", err)
			}
			defer s.Close()

			emb := embedderFromEnv()
			if emb == nil {
				emb = mock.New(openai.DefaultDimensions)
			}

			query, err := emb.Embed(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				exitErr("embed", err)
			}

			engine := memory.NewEngine(s)
			results, err := engine.FindSimilar(cmd.Context(), query, memory.Scope{AgentID: agentID}, topK, threshold)
			if err != nil {
				exitErr("find", err)
			}
			printJSON(results)
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent whose sessions to search")
	cmd.Flags().IntVarP(&topK, "top", "k", memory.DefaultTopK, "Max results")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", memory.DefaultThreshold, "Minimum similarity")
	cmd.MarkFlagRequired("agent")
	return cmd
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
