// Package cliui provides reusable terminal UI helpers (spinners, step indicators,
// markdown rendering) for branchweave CLI commands.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	KeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	HashStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	NameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
)

// spinnerFrames matches bubbletea's spinner.Dot pattern.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	var mu sync.Mutex

	// Run spinner animation in background
	go func() {
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)

	// Clear the spinner line and print final result
	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// TreeNode is the minimal shape RenderTree needs from a message: an
// identifier, a short display label, and the identifiers of its direct
// children in the order they should be drawn.
type TreeNode struct {
	ID       string
	Label    string
	Children []string
}

// RenderTree draws nodes as a connected tree rooted at rootID, in the
// box-drawing style of the `tree` command: "├── " for a sibling with more
// siblings to follow, "└── " for the last child in a group. Node
// identifiers are shortened to their first 8 characters and drawn in
// HashStyle;
// labels carry the role/branch-name styling the caller already applied.
func RenderTree(w io.Writer, nodes map[string]TreeNode, rootID string) {
	root, ok := nodes[rootID]
	if !ok {
		return
	}
	fmt.Fprintf(w, "%s %s\n", HashStyle.Render(shortID(rootID)), root.Label)
	renderTreeChildren(w, nodes, root.Children, "")
}

func renderTreeChildren(w io.Writer, nodes map[string]TreeNode, ids []string, prefix string) {
	for i, id := range ids {
		n, ok := nodes[id]
		if !ok {
			continue
		}
		isLast := i == len(ids)-1

		connector := "├── "
		childPrefix := prefix + "│   "
		if isLast {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		fmt.Fprintf(w, "%s%s%s %s\n", prefix, connector, HashStyle.Render(shortID(id)), n.Label)
		renderTreeChildren(w, nodes, n.Children, childPrefix)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RenderMarkdown renders markdown content for terminal display using glamour.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
