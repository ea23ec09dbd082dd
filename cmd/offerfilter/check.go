package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"offer-filter/internal"
	"offer-filter/internal/browser"
	"offer-filter/internal/filter"
	"offer-filter/internal/settings"
)

var (
	flagOut     string
	flagOffline bool
)

var checkCmd = &cobra.Command{
	Use:   "check [url-or-file]",
	Short: "Classify the listings of a saved or fetched results page without a browser",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cfg.StartURL
		if len(args) == 1 {
			source = args[0]
		}
		return check(cmd.Context(), cmd.OutOrStdout(), source)
	},
}

func init() {
	checkCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the filtered page to this file")
	checkCmd.Flags().BoolVar(&flagOffline, "defaults", false, "use the default settings instead of the stored ones")
	rootCmd.AddCommand(checkCmd)
}

func check(ctx context.Context, w io.Writer, source string) error {
	s := settings.Defaults()
	if !flagOffline {
		be, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		s, err = settings.Load(ctx, be.store)
		be.close()
		if err != nil {
			return err
		}
	}

	page, err := loadPage(ctx, source)
	if err != nil {
		return err
	}

	profile := filter.AllegroProfile()
	listings, err := page.Listings(ctx, profile.Listings.ListingSelector())
	if err != nil {
		return err
	}

	classifier := filter.NewClassifier(profile)
	crit := filter.Criteria{MinRating: s.MinRating, MinOpinions: s.MinOpinions, HideSponsored: s.HideSponsored}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKEEP\tREASON\tRATING\tOPINIONS")
	shown := 0
	for i, l := range listings {
		d, err := classifier.Classify(l, crit)
		if err != nil {
			d = filter.Decision{Reason: filter.Failed}
		}
		fmt.Fprintf(tw, "%d\t%v\t%s\t%g\t%d\n", i+1, d.Keep, d.Reason, d.Rating.Score, d.Rating.Opinions)

		if d.Keep {
			shown++
			if err := page.Decorate(ctx, l.ID, profile.Listings.TitleSelector(), d.Rating.Badge()); err != nil {
				internal.Log.WithError(err).WithField("listing", i+1).Debug("Failed to decorate listing")
			}
		} else if err := page.SetHidden(ctx, l.ID, true); err != nil {
			internal.Log.WithError(err).WithField("listing", i+1).Debug("Failed to hide listing")
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nShowing %d of %d (criteria: >%d opinions & >%g rating, sponsored hidden: %v)\n",
		shown, len(listings), s.MinOpinions, s.MinRating, s.HideSponsored)

	if flagOut == "" {
		return nil
	}
	out, err := page.HTML()
	if err != nil {
		return err
	}
	return os.WriteFile(flagOut, []byte(out), 0o644)
}

func loadPage(ctx context.Context, source string) (*browser.StaticPage, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return browser.NewFetcher(cfg.UserAgent, cfg.BrowserTimeout).Load(ctx, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return browser.NewStaticPage(f, "file://"+source)
}
