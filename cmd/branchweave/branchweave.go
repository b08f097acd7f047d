// Package branchweavecmder wires together the branchweave CLI's command
// tree.
package branchweavecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/branchweave/branchweave/cmd/branchweave/config"
	initcmder "github.com/branchweave/branchweave/cmd/branchweave/init"
	servecmder "github.com/branchweave/branchweave/cmd/branchweave/serve"
	showcmder "github.com/branchweave/branchweave/cmd/branchweave/show"
	treecmder "github.com/branchweave/branchweave/cmd/branchweave/tree"
	versioncmder "github.com/branchweave/branchweave/cmd/version"
)

const branchweaveLongDesc string = `branchweave is a persistence and query service for tree-structured
conversation histories.

Run the API server, inspect a conversation's tree, manage local
configuration, and initialize a project-local .branchweave/ directory
using:
  branchweave serve     Run the API server
  branchweave tree       Render a conversation's message tree
  branchweave show       Render a single message's content
  branchweave config    Get, set, and list configuration values
  branchweave init       Initialize a local .branchweave/ directory
  branchweave version    Print version information`

const branchweaveShortDesc string = "branchweave - tree-structured conversation persistence"

func NewBranchweaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branchweave",
		Short: branchweaveShortDesc,
		Long:  branchweaveLongDesc,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .branchweave/ directory to use")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(treecmder.NewTreeCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
