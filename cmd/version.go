package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version, intended to be set at build time:
//
//	go build -ldflags "-X github.com/augmentalis/uiscout/cmd.Version=1.0.0"
var Version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the uiscout version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}
