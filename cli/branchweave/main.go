package main

import (
	"os"

	branchweavecmder "github.com/branchweave/branchweave/cmd/branchweave"
)

func main() {
	cmd := branchweavecmder.NewBranchweaveCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
