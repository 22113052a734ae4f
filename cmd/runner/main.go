// Command runner is the Task Runner agent: a long-lived process that
// polls a Control Center coordinator for work, executes one task at a
// time through a language-specific wrapper script, and reports
// outcomes back.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the runner's protocol/release version, sent to the
// coordinator on every Synchronize request. Overridden at link time
// with -ldflags "-X main.Version=...".
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "runner",
		Short: "Task Runner agent for Factory PCs",
		Long:  "Polls a Control Center coordinator for work and executes tasks through wrapper scripts.",
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to the XML configuration file")

	root.AddCommand(runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the runner version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}
