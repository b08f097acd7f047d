// Package treecmder provides the tree command, which renders a
// conversation's message tree to the terminal.
package treecmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/branchweave/branchweave/pkg/cliui"
	"github.com/branchweave/branchweave/pkg/config"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
	"github.com/branchweave/branchweave/pkg/repo"
	"github.com/branchweave/branchweave/pkg/store"
	"github.com/branchweave/branchweave/pkg/store/memory"
	"github.com/branchweave/branchweave/pkg/store/postgres"
	"github.com/branchweave/branchweave/pkg/store/sqlite"
)

const treeLongDesc = `Render a conversation's message tree.

Connects to the store backend configured in .branchweave/config.toml
(or ~/.branchweave/config.toml) and draws the conversation's messages as
a tree, one line per message, rooted at the conversation's root message.`

const treeShortDesc = "Render a conversation's message tree"

func NewTreeCmd() *cobra.Command {
	var backend, dsn string

	cmd := &cobra.Command{
		Use:   "tree <conversation-id>",
		Short: treeShortDesc,
		Long:  treeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return run(configDir, backend, dsn, args[0])
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Store backend: memory, sqlite, or postgres (overrides config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Store backend connection string (overrides config)")

	return cmd
}

func run(configDir, backendOverride, dsnOverride, rawConversationID string) error {
	conversationID, err := uuid.Parse(rawConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id %q: %w", rawConversationID, err)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if backendOverride != "" {
		cfg.Store.Backend = backendOverride
	}
	if dsnOverride != "" {
		cfg.Store.DSN = dsnOverride
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	r := repo.New(st, int(cfg.Store.MaxLineageDepth), nil)

	ctx := context.Background()
	messages, _, err := r.GetConversationTree(ctx, conversationID, 0, 0)
	if err != nil {
		return fmt.Errorf("loading conversation tree: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println("conversation has no messages")
		return nil
	}

	nodes := make(map[string]cliui.TreeNode, len(messages))
	var rootID string
	for _, m := range messages {
		id := m.MessageID.String()
		nodes[id] = cliui.TreeNode{ID: id, Label: messageLabel(m)}
		if m.IsRoot() {
			rootID = id
		}
	}
	for _, m := range messages {
		if m.ParentMessageID == nil {
			continue
		}
		parentID := m.ParentMessageID.String()
		parent := nodes[parentID]
		parent.Children = append(parent.Children, m.MessageID.String())
		nodes[parentID] = parent
	}

	cliui.RenderTree(os.Stdout, nodes, rootID)
	return nil
}

func messageLabel(m *convo.Message) string {
	role := cliui.DimStyle.Render(string(m.Role))
	return fmt.Sprintf("%s %s", role, cliui.ValueStyle.Render(contentPreview(m.Content)))
}

func contentPreview(c content.Content) string {
	switch c.Tag {
	case content.TagMetadata:
		if c.Metadata != nil {
			return c.Metadata.Title
		}
	case content.TagText:
		if c.Text != nil {
			return truncate(c.Text.Text, 60)
		}
	case content.TagImage:
		return "[image]"
	case content.TagToolCall:
		if c.ToolCall != nil {
			return fmt.Sprintf("[tool_call %s]", c.ToolCall.ToolName)
		}
	case content.TagToolResult:
		return "[tool_result]"
	case content.TagImageBatch:
		return "[image_batch]"
	}
	return fmt.Sprintf("[%s]", c.Tag)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		st, err := sqlite.New(dsn)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return st, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires store.dsn to be set")
		}
		st, err := postgres.New(context.Background(), cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q (available: memory, sqlite, postgres)", cfg.Store.Backend)
	}
}
