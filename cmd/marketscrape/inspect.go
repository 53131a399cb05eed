package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/inspect"
	"github.com/IshaanNene/marketscrape/internal/sites"
	"github.com/IshaanNene/marketscrape/internal/storage"
)

var (
	inspectCSS    string
	inspectXPath  string
	inspectAttr   string
	inspectSite   string
	inspectOrigin string
	inspectLinks  bool
)

// inspectCmd creates the "inspect" subcommand.
func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <page.html>",
		Short: "Query a saved page offline",
		Long: `Re-analyse a page saved with --debug-html without fetching it again.

Exactly one of --css, --xpath, --site or --links selects what to do:
  --css / --xpath   print the values the selector matches
  --site            rerun that site's extractor and print its listings
  --links           print the page's distinct http(s) links`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}

	cmd.Flags().StringVar(&inspectCSS, "css", "", "CSS selector")
	cmd.Flags().StringVar(&inspectXPath, "xpath", "", "XPath expression")
	cmd.Flags().StringVar(&inspectAttr, "attr", "", `value to read from matches: text (default), html, outerHTML or an attribute name`)
	cmd.Flags().StringVar(&inspectSite, "site", "", "site whose extractor to run")
	cmd.Flags().StringVar(&inspectOrigin, "origin", "", "scheme://host used to absolutize links (default: the site's configured origin)")
	cmd.Flags().BoolVar(&inspectLinks, "links", false, "list links")

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	modes := 0
	for _, set := range []bool{inspectCSS != "", inspectXPath != "", inspectSite != "", inspectLinks} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of --css, --xpath, --site or --links is required")
	}

	page, err := inspect.LoadPage(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch {
	case inspectSite != "":
		origin := inspectOrigin
		if origin == "" {
			origin = defaultOrigin(inspectSite)
		}
		listings, err := inspect.Extract(inspectSite, page, origin)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d listings\n", len(listings))
		return storage.WriteText(out, listings)

	case inspectLinks:
		links, err := inspect.Links(page, inspectOrigin)
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Fprintln(out, l)
		}
		return nil

	default:
		var values []string
		if inspectCSS != "" {
			values, err = inspect.Select(page, inspect.Rule{Selector: inspectCSS, Attribute: inspectAttr})
		} else {
			values, err = inspect.XPath(page, inspect.Rule{Selector: inspectXPath, Attribute: inspectAttr})
		}
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(out, v)
		}
		return nil
	}
}

func defaultOrigin(site string) string {
	for _, s := range config.DefaultSites() {
		if s.Name == site {
			return sites.Origin(s.BaseURL)
		}
	}
	return ""
}

// showCmd creates the "show" subcommand.
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <artifact.txt>",
		Short: "Read a text output file back and print its listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listings, err := storage.ReadText(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d listings\n", args[0], len(listings))
			for i, l := range listings {
				fmt.Fprintf(out, "%3d. %s | %s | %s\n", i+1, l.Title, l.Price, l.URL)
			}
			return nil
		},
	}
}

// sitesCmd creates the "sites" subcommand.
func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the sites an extractor is registered for",
		Run: func(cmd *cobra.Command, args []string) {
			defaults := make(map[string]config.SiteConfig)
			for _, s := range config.DefaultSites() {
				defaults[s.Name] = s
			}
			out := cmd.OutOrStdout()
			for _, name := range sites.Names() {
				d := defaults[name]
				fmt.Fprintf(out, "%-14s %-40s %s\n", name, d.BaseURL, d.OutputFile)
			}
		},
	}
}
