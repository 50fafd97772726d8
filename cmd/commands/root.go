package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersion records build information shown by --version.
func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
}

// NewRootCmd builds the command tree. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "movie-tracker",
		Short: "Chat bot backend that tracks watched films and recommends new ones",
		Long: `movie-tracker keeps a per-user list of watched films and recommends
films the user has not seen yet, using TMDB for metadata.

Configuration is read from the environment and an optional .env file.

Examples:
  movie-tracker serve
  movie-tracker library list 42
  movie-tracker library delete 42 3`,
		Version:       fmt.Sprintf("%s (%s)", appVersion, appCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewLibraryCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
