package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dragondrop-dev/dragondrop/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬─┐┌─┐┌─┐┌─┐┌┐┌╔╦╗┬─┐┌─┐┌─┐
   ║║├┬┘├─┤│ ┬│ ││││ ║║├┬┘│ │├─┘
  ═╩╝┴└─┴ ┴└─┘└─┘┘└┘═╩╝┴└─└─┘┴
`

// stdout receives the CLI's human-readable output. Widget notifications
// print from upload goroutines, so writes go through outMu.
var (
	stdout io.Writer = os.Stdout
	outMu  sync.Mutex
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	dir     string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var de *errors.DragonError
		if stderrors.As(err, &de) {
			errors.PrintError(de)
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "dragondrop",
		Short: "Drag-and-drop file uploads",
		Long: `DragonDrop receives and sends drag-and-drop file uploads.

  • serve   runs the upload endpoints, the notification relay and metrics
  • push    uploads files through a headless widget
  • init    writes a default dragondrop.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Directory containing dragondrop.json")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		serveCmd(g),
		pushCmd(g),
		initCmd(g),
		versionCmd(),
	)

	return rootCmd
}

// printBanner prints the DragonDrop ASCII art banner.
func printBanner() {
	printf("%s", banner)
}

func printf(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(stdout, format, args...)
}

// success prints a success message.
func success(format string, args ...any) {
	printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
