// Package showcmder provides the show command, which renders a single
// message's content to the terminal.
package showcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/branchweave/branchweave/pkg/cliui"
	"github.com/branchweave/branchweave/pkg/config"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/repo"
	"github.com/branchweave/branchweave/pkg/store"
	"github.com/branchweave/branchweave/pkg/store/memory"
	"github.com/branchweave/branchweave/pkg/store/postgres"
	"github.com/branchweave/branchweave/pkg/store/sqlite"
)

const showLongDesc = `Render a single message's content.

Text and metadata content is rendered as markdown through glamour; other
content variants are printed as indented JSON, since their payloads (image URLs, tool call
arguments, tool results) aren't meant for direct terminal display.`

const showShortDesc = "Render a single message's content"

func NewShowCmd() *cobra.Command {
	var backend, dsn string

	cmd := &cobra.Command{
		Use:   "show <conversation-id> <message-id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return run(configDir, backend, dsn, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Store backend: memory, sqlite, or postgres (overrides config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Store backend connection string (overrides config)")

	return cmd
}

func run(configDir, backendOverride, dsnOverride, rawConversationID, rawMessageID string) error {
	conversationID, err := uuid.Parse(rawConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id %q: %w", rawConversationID, err)
	}
	messageID, err := uuid.Parse(rawMessageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", rawMessageID, err)
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

	msg, err := r.GetMessage(context.Background(), conversationID, messageID)
	if err != nil {
		return fmt.Errorf("loading message: %w", err)
	}

	fmt.Printf("%s %s %s\n\n",
		cliui.KeyStyle.Render("role:"), cliui.ValueStyle.Render(string(msg.Role)),
		cliui.DimStyle.Render(fmt.Sprintf("(depth %d)", msg.Depth)),
	)

	rendered, err := renderContent(msg.Content)
	if err != nil {
		return fmt.Errorf("rendering content: %w", err)
	}
	fmt.Println(rendered)
	return nil
}

func renderContent(c content.Content) (string, error) {
	switch c.Tag {
	case content.TagText:
		if c.Text == nil {
			return "", fmt.Errorf("text content with nil payload")
		}
		return cliui.RenderMarkdown(c.Text.Text)
	case content.TagMetadata:
		if c.Metadata == nil {
			return "", fmt.Errorf("metadata content with nil payload")
		}
		body := "# " + c.Metadata.Title
		if c.Metadata.Description != "" {
			body += "\n\n" + c.Metadata.Description
		}
		return cliui.RenderMarkdown(body)
	default:
		return summarizeOpaque(c)
	}
}

// summarizeOpaque renders the non-text variants (image, tool_call,
// tool_result, image_batch, unrecognized opaque) as pretty-printed JSON
// rather than through the markdown renderer, since none of them is
// prose.
func summarizeOpaque(c content.Content) (string, error) {
	var payload any
	switch c.Tag {
	case content.TagImage:
		payload = c.Image
	case content.TagToolCall:
		payload = c.ToolCall
	case content.TagToolResult:
		payload = c.ToolResult
	case content.TagImageBatch:
		payload = c.ImageBatch
	default:
		if c.Opaque != nil {
			payload = c.Opaque
		}
	}
	if payload == nil {
		return cliui.DimStyle.Render(fmt.Sprintf("[%s: no payload]", c.Tag)), nil
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return cliui.DimStyle.Render(fmt.Sprintf("[%s]", c.Tag)) + "\n" + string(data), nil
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
