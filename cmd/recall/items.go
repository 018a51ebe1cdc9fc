package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"recall/internal/config"
	"recall/internal/domain"
)

var flagDiscoverSearch string

var importCmd = &cobra.Command{
	Use:   "import URL",
	Short: "Save and scrape a single URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.service.ImportOne(cmd.Context(), args[0], flagUser)
		if err != nil {
			return err
		}
		printItem(cmd.OutOrStdout(), item)
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk URL...",
	Short: "Import several URLs one after another, reporting progress",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		seq, err := a.service.BulkImport(cmd.Context(), args, flagUser)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var tally domain.Tally
		for p := range seq {
			tally.Add(p)
			printProgress(out, p, tally)
		}
		fmt.Fprintln(out, tally.Message())
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover SEED_URL",
	Short: "List candidate article URLs reachable from a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		links, err := a.service.DiscoverURLs(cmd.Context(), args[0], flagDiscoverSearch)
		if err != nil {
			return err
		}
		printLinks(cmd.OutOrStdout(), links)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search the web for articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.service.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, r := range results {
			fmt.Fprintf(out, "%2d. %s\n    %s\n", i+1, r.Title, r.URL)
			if r.Description != "" {
				fmt.Fprintf(out, "    %s\n", r.Description)
			}
		}
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List saved items, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(flagConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.service.ListItems(cmd.Context(), flagUser)
		if err != nil {
			return err
		}
		return printItems(cmd.OutOrStdout(), items)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&flagDiscoverSearch, "search", "", "only keep links matching this text")
}

func printItem(w io.Writer, item domain.SavedItem) {
	fmt.Fprintf(w, "%s  %s  %s\n", item.ID, item.Status, item.URL)
	if title := domain.Deref(item.Title); title != "" {
		fmt.Fprintf(w, "title: %s\n", title)
	}
	if author := domain.Deref(item.Author); author != "" {
		fmt.Fprintf(w, "author: %s\n", author)
	}
	if item.PublishedAt != nil {
		fmt.Fprintf(w, "published: %s\n", item.PublishedAt.Format("2006-01-02"))
	}
}

func printProgress(w io.Writer, p domain.Progress, tally domain.Tally) {
	fmt.Fprintf(w, "[%d/%d %3d%%] %-7s %s\n", p.Completed, p.Total, tally.Percent(), p.Status, p.URL)
}

func printLinks(w io.Writer, links []domain.Link) {
	for _, l := range links {
		if l.Title != "" {
			fmt.Fprintf(w, "%s\t%s\n", l.URL, l.Title)
			continue
		}
		fmt.Fprintln(w, l.URL)
	}
}

func printItems(w io.Writer, items []domain.SavedItem) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTITLE")
	for _, item := range items {
		title := domain.Deref(item.Title)
		if title == "" {
			title = item.URL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.ID, item.Status, item.CreatedAt.Format("2006-01-02 15:04"), title)
	}
	return tw.Flush()
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
