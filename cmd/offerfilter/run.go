package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"offer-filter/internal"
	"offer-filter/internal/browser"
	"offer-filter/internal/control"
	"offer-filter/internal/filter"
	"offer-filter/internal/filter/engine"
	"offer-filter/internal/settings"
	"offer-filter/internal/storage"
	"offer-filter/pkg/models"
)

var errBrowserClosed = errors.New("browser closed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the start page in Chrome and filter it live",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagStartURL, "url", "u", "", "search results page to open (overrides START_URL)")
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context) error {
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	if seeded, err := settings.Seed(ctx, be.store); err != nil {
		return err
	} else if len(seeded) > 0 {
		internal.Log.WithField("keys", len(seeded)).Info("Seeded default settings")
	}

	page, err := browser.NewChromePage(ctx, browser.ChromeConfig{
		WSURL:     cfg.ChromeWSURL,
		Headless:  cfg.Headless,
		UserAgent: cfg.BrowserUserAgent,
		Timeout:   cfg.BrowserTimeout,
	})
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Navigate(ctx, cfg.StartURL); err != nil {
		return fmt.Errorf("open %s: %w", cfg.StartURL, err)
	}

	profile := filter.AllegroProfile()
	if u, err := url.Parse(cfg.StartURL); err == nil {
		m := models.MarketplaceFromHost(u.Hostname())
		if m == models.None {
			internal.Log.WithField("host", u.Hostname()).Warn("Unknown marketplace, using the Allegro profile")
		}
		profile = filter.ProfileFor(m)
	}

	reports := make(chan models.PassReport, cfg.BatchSize*2)
	opts := engine.OptionsFromConfig(cfg, profile)
	opts.Reports = reports
	eng := engine.New(page, be.store, opts)

	var sink storage.Sink[models.PassReport] = storage.LogSink{}
	if be.db != nil {
		sink = be.db.Passes()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		storage.RunBatchWorker(gctx, reports, sink, cfg.BatchSize, 5*time.Second)
		return nil
	})
	if cfg.ControlAddr != "" {
		srv := control.NewServer(be.store, eng)
		g.Go(func() error {
			return srv.Serve(gctx, cfg.ControlAddr)
		})
	}
	g.Go(func() error {
		select {
		case <-page.Done():
			return errBrowserClosed
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	if errors.Is(err, errBrowserClosed) {
		internal.Log.Info("Browser closed, shutting down")
		return nil
	}
	return err
}
