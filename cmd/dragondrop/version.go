package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version, commit, and build information for the DragonDrop CLI.`,
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				printf("%s\n", version)
				return
			}

			printBanner()
			printf("\n")
			printf("  Version:    %s\n", version)
			printf("  Commit:     %s\n", commit)
			printf("  Built:      %s\n", date)
			printf("  Go version: %s\n", runtime.Version())
			printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
			printf("\n")
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
