package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"sd-address-tools/internal/cli"
	"sd-address-tools/internal/engine"
	"sd-address-tools/internal/model"
	"sd-address-tools/internal/sd"
)

var (
	searchTerm string
	userName   string
	conn       cli.ConnectionFlags
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "search-description",
		Short: "Search address object descriptions in Security Director",
		Long: `search-description lists every address object in Security Director and
prints the names of those whose description contains the search string.
Objects without a description match "Not Present".`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVarP(&searchTerm, "search", "s", "", "String to search for (required)")
	rootCmd.Flags().StringVarP(&userName, "user", "u", "", "Login name for Security Director (required)")
	conn.Register(rootCmd)

	rootCmd.MarkFlagRequired("search")
	rootCmd.MarkFlagRequired("user")

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := cli.SetupLogger(conn.LogLevel, conn.LogFile)
	slog.SetDefault(logger)

	color, err := cli.ColorEnabled(conn.Color, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	out := cli.NewPrinter(cmd.OutOrStdout(), color)
	out.Banner("Security Director: Search Address Object Descriptions Fields")

	cfg, err := conn.LoadConfig(cmd, nil)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return err
	}

	password, err := cli.PromptPassword(out.Writer(), userName)
	if err != nil {
		return err
	}

	startTime := time.Now()
	client := cli.NewClient(cfg, logger)
	var matches []model.AddressSummary
	err = client.WithSession(cmd.Context(), sd.Credentials{User: userName, Password: password}, func(s *sd.Session) error {
		var searchErr error
		matches, searchErr = engine.SearchDescriptions(cmd.Context(), s, searchTerm)
		return searchErr
	})
	if err != nil {
		slog.Error("Description search failed", "error", err)
		out.Println(out.Style(cli.Red, "   ! ERROR: "+err.Error()))
		return err
	}
	slog.Info("Description search finished", "term", searchTerm, "matches", len(matches), "duration", time.Since(startTime))

	printMatches(out, searchTerm, matches)
	return nil
}

func printMatches(out *cli.Printer, term string, matches []model.AddressSummary) {
	rule := "====================================================="
	out.Println(rule)
	out.Printf(" The following objects contain a description of '%s'\n", term)
	out.Println(rule)
	for _, m := range matches {
		out.Println(m.Name)
	}
	out.Println("")
}
