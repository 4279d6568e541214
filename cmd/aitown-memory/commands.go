package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ai-town/ai-town-cn/internal/logging"
	"github.com/ai-town/ai-town-cn/internal/storage/sqlite"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <agent-id> <description>",
		Short: "Store a memory for an agent",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			payload, err := payloadFromFlags(cmd)
			if err != nil {
				return err
			}
			d := types.MemoryDraft{AgentID: args[0], Description: args[1], Payload: payload}
			if imp, _ := cmd.Flags().GetInt("importance"); imp >= 0 {
				d.Importance = types.Importance(imp)
			}

			ids, err := a.engine.AddMemories(cmd.Context(), []types.MemoryDraft{d})
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}),
	}
	cmd.Flags().Int("importance", -1, "Importance 0-9 (default: rated by the language model)")
	cmd.Flags().String("about", "", "Agent ID the memory is about (relationship memory)")
	cmd.Flags().String("conversation", "", "Conversation ID the memory summarizes")
	return cmd
}

// payloadFromFlags builds a payload from exactly one of --about and
// --conversation.
func payloadFromFlags(cmd *cobra.Command) (types.Payload, error) {
	about, _ := cmd.Flags().GetString("about")
	conv, _ := cmd.Flags().GetString("conversation")
	switch {
	case about != "" && conv != "":
		return nil, fmt.Errorf("--about and --conversation are mutually exclusive")
	case about != "":
		return types.RelationshipPayload{AgentID: about}, nil
	case conv != "":
		return types.ConversationPayload{ConversationID: conv}, nil
	default:
		return nil, fmt.Errorf("one of --about or --conversation is required")
	}
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <agent-id> <query>",
		Short: "List an agent's memories by similarity, without recording access",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			query, err := a.engine.EmbedText(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			results, err := a.engine.Search(cmd.Context(), args[0], query, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No memories found")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%.4f  [%d] %s\n", r.Score, r.Memory.Importance, r.Memory.Description)
			}
			return nil
		}),
	}
	cmd.Flags().IntP("limit", "n", 0, "Maximum results (default from config)")
	return cmd
}

func accessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access <agent-id> <query>",
		Short: "Retrieve an agent's most useful memories and record the access",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			query, err := a.engine.EmbedText(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			results, err := a.engine.AccessMemories(cmd.Context(), args[0], query, count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No memories found")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%.3f  rel=%.3f imp=%.0f rec=%.3f  %s\n",
					r.Score, r.Relevance, r.Importance, r.Recency, r.Memory.Description)
			}
			return nil
		}),
	}
	cmd.Flags().IntP("count", "n", 0, "Number of memories (default from config)")
	return cmd
}

func sayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "say <conversation-id> <author-id> <text>",
		Short: "Append a dialogue message to a conversation",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			to, _ := cmd.Flags().GetStringSlice("to")
			msg := &types.Message{
				ConversationID: args[0],
				AuthorID:       args[1],
				AuthorName:     name,
				RecipientIDs:   to,
				Text:           args[2],
			}
			if err := a.store.AddMessage(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return nil
		}),
	}
	cmd.Flags().String("name", "", "Display name of the author")
	cmd.Flags().StringSlice("to", nil, "Recipient agent IDs")
	return cmd
}

func identityFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Agent display name")
	cmd.Flags().String("identity", "", "Persona description handed to the language model")
}

func identityFromFlags(cmd *cobra.Command, agentID string) types.AgentIdentity {
	name, _ := cmd.Flags().GetString("name")
	identity, _ := cmd.Flags().GetString("identity")
	if name == "" {
		name = agentID
	}
	return types.AgentIdentity{Name: name, Identity: identity}
}

func rememberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember <agent-id> <conversation-id>",
		Short: "Summarize what the agent has not yet remembered of a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var lastSpoke *time.Time
			if s, _ := cmd.Flags().GetString("last-spoke"); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return fmt.Errorf("--last-spoke: %w", err)
				}
				lastSpoke = &t
			}

			ok, err := a.engine.RememberConversation(cmd.Context(), args[0],
				identityFromFlags(cmd, args[0]), args[1], lastSpoke)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Conversation remembered")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing new to remember")
			}
			return nil
		}),
	}
	identityFlags(cmd)
	cmd.Flags().String("last-spoke", "", "RFC3339 time the agent last spoke")
	return cmd
}

func reflectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reflect <agent-id>",
		Short: "Derive insights from recent memories once they are important enough",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ok, err := a.engine.Reflect(cmd.Context(), args[0], identityFromFlags(cmd, args[0]))
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Reflection stored")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No reflection needed")
			}
			return nil
		}),
	}
	identityFlags(cmd)
	return cmd
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <dest-path>",
		Short: "Write a verified point-in-time copy of the memory database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level, cmd.ErrOrStderr())
			store, err := sqlite.NewStore(cfg.Storage.SQLitePath, sqlite.WithLogger(logger))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Snapshot(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), args[0])
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ec := engineConfig(cfg)
			if err := ec.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  sqlite:     %s\n", cfg.Storage.SQLitePath)
			fmt.Fprintf(out, "  vectors:    %s (namespace %s)\n", cfg.VectorIndex.Backend, cfg.VectorIndex.Namespace)
			fmt.Fprintf(out, "  chat:       %s %s\n", cfg.LLM.ChatProvider, cfg.LLM.ChatModel)
			fmt.Fprintf(out, "  embeddings: %s %s\n", cfg.LLM.EmbeddingProvider, cfg.LLM.EmbeddingModel)
			return nil
		},
	})
	return cmd
}
