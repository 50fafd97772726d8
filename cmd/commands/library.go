package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"movie-tracker/internal/config"
	"movie-tracker/internal/models"
)

var libraryFormat string

// NewLibraryCmd creates the library command group for operators.
func NewLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Inspect or edit stored film libraries",
		Long: `Operator access to the film library, bypassing the chat flow.

Do not run against a bolt store while the server holds it open.`,
	}

	list := &cobra.Command{
		Use:   "list <userId>",
		Short: "List a user's watched films",
		Long: `List a user's watched films in id order.

Examples:
  movie-tracker library list 42
  movie-tracker library list 42 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runLibraryList,
	}
	list.Flags().StringVar(&libraryFormat, "format", "table", "Output format (table or json)")

	del := &cobra.Command{
		Use:   "delete <userId> <filmId>",
		Short: "Delete one film from a user's library",
		Args:  cobra.ExactArgs(2),
		RunE:  runLibraryDelete,
	}

	cmd.AddCommand(list, del)
	return cmd
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	userID, err := parseUserArg(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	repo, closeStore, err := openLibrary(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	films, err := repo.ListFilms(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printFilms(cmd.OutOrStdout(), films, libraryFormat)
}

func runLibraryDelete(cmd *cobra.Command, args []string) error {
	userID, err := parseUserArg(args[0])
	if err != nil {
		return err
	}
	filmID, err := strconv.Atoi(args[1])
	if err != nil || filmID <= 0 {
		return fmt.Errorf("invalid film id %q", args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	repo, closeStore, err := openLibrary(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	deleted, err := repo.DeleteFilm(cmd.Context(), userID, filmID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %d has no film %d", userID, filmID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted film %d for user %d\n", filmID, userID)
	return nil
}

func printFilms(w io.Writer, films []models.WatchedFilm, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(films)
	case "table", "":
		if len(films) == 0 {
			fmt.Fprintln(w, "No films.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tGENRES\tTMDB\tADDED")
		for _, f := range films {
			tmdbID := "-"
			if f.TMDBId > 0 {
				tmdbID = strconv.Itoa(f.TMDBId)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				f.ID, f.Label(), strings.Join(f.Genres, ", "), tmdbID, f.AddedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func parseUserArg(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
