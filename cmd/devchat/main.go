package main

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devchat/cmd/devchat/cmds"
)

func main() {
	rootCmd, err := cmds.NewRootCmd()
	cobra.CheckErr(err)
	cobra.CheckErr(rootCmd.Execute())
}
