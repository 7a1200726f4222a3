package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┌─┐┬─┐┌─┐
  ├─┤│ ┬│ │├┬┘├─┤
  ┴ ┴└─┘└─┘┴└─┴ ┴
`

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that talks to a backend.
type globalFlags struct {
	configDir string
	baseURL   string
	user      string
	password  string
	verbose   bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "agora",
		Short: "Community board client",
		Long: `Agora is a command-line client for the community board.

Likes are applied optimistically and reconciled with the server.
Every other change is sent once per post or comment at a time;
a second request for the same subject is ignored while the first
is in flight.

Configuration is read from agora.json or agora.yaml and the
AGORA_BASE_URL, AGORA_TIMEOUT and AGORA_RATE_LIMIT variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configDir, "config", "c", ".", "Directory to search for agora.json")
	pf.StringVar(&flags.baseURL, "base-url", "", "Backend URL (overrides the config file)")
	pf.StringVarP(&flags.user, "user", "u", os.Getenv("AGORA_USER"), "Username to sign in with")
	pf.StringVar(&flags.password, "password", os.Getenv("AGORA_PASSWORD"), "Password to sign in with")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log requests")

	rootCmd.AddCommand(
		likeCmd(flags, likeOn),
		likeCmd(flags, likeOff),
		likeCmd(flags, likeToggle),
		postCmd(flags),
		commentCmd(flags),
		reportCmd(flags),
		postsCmd(flags),
		likesCmd(flags),
		watchCmd(flags),
		serveCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

// printBanner prints the Agora ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
