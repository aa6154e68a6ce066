package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"sd-address-tools/internal/cli"
	"sd-address-tools/internal/config"
	"sd-address-tools/internal/engine"
	"sd-address-tools/internal/model"
	"sd-address-tools/internal/parser"
	"sd-address-tools/internal/sd"
)

var (
	blocklistFile string
	userName      string
	entryProvider string
	entriesDB     string
	listName      string
	groupName     string
	dryRun        bool
	conn          cli.ConnectionFlags
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "update-blocklist",
		Short: "Update a Security Director address group from a blocklist",
		Long: `update-blocklist reads IP addresses and networks from a text file (or a
MariaDB table), creates the missing address objects in Security Director and
adds all of them to the blocklist address group.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVarP(&blocklistFile, "file", "f", "", "File that contains the IPs/subnets (for 'file' provider)")
	rootCmd.Flags().StringVarP(&userName, "user", "u", "", "Login name for Security Director (required)")
	rootCmd.Flags().StringVar(&entryProvider, "provider", "file", "Entry provider type: 'file' or 'mariadb'")
	rootCmd.Flags().StringVar(&entriesDB, "db", "", "Database connection string (for 'mariadb' provider, overrides config)")
	rootCmd.Flags().StringVar(&listName, "list", "", "Blocklist name to filter DB queries (overrides config)")
	rootCmd.Flags().StringVar(&groupName, "group", "", "Address group to update (overrides config)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve entries and read the group without changing anything")
	conn.Register(rootCmd)

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
	out.Banner("Update Blocklist in Security Director")

	cfg, err := conn.LoadConfig(cmd, func(c *config.Config) {
		if cmd.Flags().Changed("group") {
			c.Blocklist.Group = groupName
		}
		if cmd.Flags().Changed("db") {
			c.Source.DSN = entriesDB
		}
		if cmd.Flags().Changed("list") {
			c.Source.List = listName
		}
	})
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return err
	}

	slog.Info("Loading blocklist entries", "provider", entryProvider)
	lines, err := loadEntries(entryProvider, blocklistFile, cfg.Source.DSN, cfg.Source.List)
	if err != nil {
		slog.Error("Failed to load blocklist entries", "error", err)
		out.Println(out.Style(cli.Red, "Could not read the blocklist: "+err.Error()))
		return err
	}
	slog.Info("Blocklist entries loaded", "count", len(lines))

	templates, err := engine.NewObjectTemplates(cfg.Blocklist.NameTemplate, cfg.Blocklist.DescriptionTemplate, time.Now())
	if err != nil {
		return err
	}

	password, err := cli.PromptPassword(out.Writer(), userName)
	if err != nil {
		return err
	}

	client := cli.NewClient(cfg, logger)
	syncOpts := engine.SyncOptions{
		Group:       cfg.Blocklist.Group,
		MemberLimit: cfg.Blocklist.MemberLimit,
		DryRun:      dryRun,
		Templates:   templates,
	}

	startTime := time.Now()
	out.Println("- Creating SSO Session with Space/SD")
	var report *model.SyncReport
	err = client.WithSession(cmd.Context(), sd.Credentials{User: userName, Password: password}, func(s *sd.Session) error {
		out.Printf("- Getting Object ID of %s...\n", syncOpts.Group)
		var syncErr error
		report, syncErr = engine.NewSyncer(s, syncOpts, logger).Sync(cmd.Context(), lines)
		return syncErr
	})
	if report != nil {
		printEntries(out, report)
	}
	if err != nil {
		slog.Error("Blocklist update failed", "error", err, "duration", time.Since(startTime))
		switch {
		case errors.Is(err, sd.ErrGroupNotFound):
			out.Println(out.Style(cli.Red, fmt.Sprintf("   ! ERROR: address group '%s' is not present!", syncOpts.Group)))
		case errors.Is(err, sd.ErrConflict):
			out.Println(out.Style(cli.Red, "   ! ERROR: the address group was changed by someone else, run again"))
		default:
			out.Println(out.Style(cli.Red, "   ! ERROR: "+err.Error()))
		}
		return err
	}

	printSummary(out, report, syncOpts.MemberLimit)
	slog.Info("Blocklist update finished", "duration", time.Since(startTime), "updated", report.Updated)
	return nil
}

func loadEntries(provider, path, dbConnStr, list string) ([]string, error) {
	switch provider {
	case "file":
		if path == "" {
			return nil, fmt.Errorf("blocklist file path must be provided for file provider")
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return parser.ParseBlocklist(file)
	case "mariadb":
		if dbConnStr == "" {
			return nil, fmt.Errorf("database connection string must be provided for mariadb provider")
		}
		p, err := parser.NewMariaDBSource(dbConnStr, list)
		if err != nil {
			return nil, err
		}
		defer p.Close()
		if err := p.Parse(); err != nil {
			return nil, err
		}
		return p.Lines, nil
	default:
		return nil, fmt.Errorf("unknown entry provider: %s", provider)
	}
}

func printEntries(out *cli.Printer, report *model.SyncReport) {
	if len(report.Entries) == 0 && len(report.BadEntries) == 0 {
		return
	}
	out.Println("- Processing IP List...")
	for _, e := range report.Entries {
		var status string
		switch e.Status {
		case model.StatusExisting:
			status = out.Style(cli.Yellow, fmt.Sprintf("Existing(%s)", e.ID))
		case model.StatusCreated:
			status = out.Style(cli.Cyan, fmt.Sprintf("New(%s)", e.ID))
		case model.StatusPlanned:
			status = out.Style(cli.Cyan, "New(dry-run)")
		}
		out.Printf("    + %-20s :%s%s\n", e.Entry.Raw, out.Style(cli.Green, "Format=passed | "), status)
		for _, w := range e.Warnings {
			out.Println(out.Style(cli.Yellow, "        ! "+w))
		}
	}
	for _, b := range report.BadEntries {
		out.Printf("    + %-20s :%s\n", b.Line, out.Style(cli.Red, "Format=ERROR: "+b.Reason))
	}
}

func printSummary(out *cli.Printer, report *model.SyncReport, limit int) {
	resolved := report.Count(model.StatusExisting) + report.Count(model.StatusCreated)
	out.Println("- New member ID list to add to group...")
	out.Printf("   + Current number of members: %d\n", resolved)

	out.Printf("- Current Objects in %s...\n", report.Group)
	out.Printf("   + Current number of members: %d\n", report.ExistingMembers)

	out.Printf("- Updating %s with new entries...\n", report.Group)
	if report.Result.OverThreshold {
		out.Println(out.Style(cli.Red, fmt.Sprintf("   !! Address Group Object count exceeds %d which could be problematic for some branch SRX devices.", limit)))
	} else {
		out.Printf("   + Total member list is less than %d\n", limit)
	}
	switch {
	case report.DryRun:
		out.Printf("   + Dry run: %d object(s) would be created, group left unchanged\n", report.Count(model.StatusPlanned))
	case report.Updated:
		out.Printf("   + Added %d member(s), group now has %d\n", len(report.Result.Added), len(report.Result.Merged))
	default:
		out.Println("   + Group already contains every entry, nothing to update")
	}
	out.Println("- SSO session closed")

	out.Println("")
	out.Println("=============================== C O M P L E T E ==================================")
	switch {
	case report.DryRun:
		out.Println(" Dry run finished. No address objects were created and the " + report.Group)
		out.Println(" address group was not modified.")
	case !report.Updated:
		out.Println(" The " + report.Group + " address group already contained every entry")
		out.Println(" from the blocklist and was not modified. Nothing needs to be pushed.")
	default:
		out.Println(" The address group has been updated with the IPs from the blocklist. Login")
		out.Println(" to Security Director and verify the additions to the " + report.Group)
		out.Println(" address group. Once satisfied, push the updates to the firewalls.")
	}
	out.Println(" ")
	if len(report.BadEntries) > 0 {
		out.Println(" !!! NOTE: The following IP addresses had bad formatting and were NOT added:")
		for _, b := range report.BadEntries {
			out.Println("    - " + b.Line)
		}
	}
}
