package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/assemble"
	"github.com/JakeFAU/classical-corpus/internal/catalog"
	"github.com/JakeFAU/classical-corpus/internal/transport"
)

type scrapeOptions struct {
	resume   string
	proxy    string
	noProxy  bool
	relay    string
	relayKey string
}

// newScrapeCmd creates the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape [ids...]",
		Short: "Acquire works from the catalog",
		Long: `Fetches every chapter page of the selected works and merges the passages
into <output-dir>/<id>.json. Chapters already on disk are skipped, so an
interrupted or failed run can simply be repeated. With no ids the whole
catalog is processed; --resume starts at the given work and continues to the
end of the catalog.

Pressing Ctrl-C once saves the chapters fetched so far and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.resume, "resume", "", "start at this work id and continue through the catalog")
	flags.StringVar(&opts.proxy, "proxy", "", "route requests through this HTTP proxy (host:port)")
	flags.BoolVar(&opts.noProxy, "no-proxy", false, "fetch directly, ignoring any configured relay or proxy")
	flags.StringVar(&opts.relay, "relay", "", fmt.Sprintf("fetch through a relay service (%v)", transport.RelayServices()))
	flags.StringVar(&opts.relayKey, "relay-key", "", "API key for the relay service")
	return cmd
}

// transportSettings applies scrape flags on top of the configured transport.
func transportSettings(tc transport.Config, opts *scrapeOptions) transport.Config {
	if opts.relay != "" {
		tc.Relay.Service = opts.relay
	}
	if opts.relayKey != "" {
		tc.Relay.Key = opts.relayKey
	}
	if opts.proxy != "" {
		tc.Proxy = opts.proxy
	}
	if opts.noProxy {
		tc.Relay = transport.Relay{}
		tc.Proxy = ""
	}
	return tc
}

func runScrape(cmd *cobra.Command, args []string, opts *scrapeOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger := appInstance.GetLogger().With(zap.String("run_id", runID.String()))

	cat := appInstance.GetCatalog()
	sel, err := cat.Select(args, opts.resume)
	for _, id := range sel.Unknown {
		logger.Warn("Unknown work id", zap.String("work", id))
	}
	if err != nil {
		logger.Info("Known works", zap.Strings("ids", cat.IDs()))
		return err
	}

	tr, err := appInstance.NewTransport(transportSettings(appInstance.GetConfig().TransportSettings(), opts))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Release the handler after the first signal so a second one terminates the process.
	go func() {
		<-ctx.Done()
		stop()
	}()

	asm := assemble.New(tr, appInstance.GetStore(), appInstance.GetMetrics(), logger.Named("assemble"), cat.Source)
	logger.Info("Starting scrape", zap.Int("works", len(sel.Works)), zap.String("output", appInstance.GetStore().Dir()))

	summaries, err := scrapeWorks(ctx, asm, sel.Works, logger)
	fmt.Fprintln(cmd.OutOrStdout(), renderSummaries(summaries))

	if ctx.Err() != nil && cmd.Context().Err() == nil {
		logger.Info("Interrupted; progress saved", zap.Int("resets", tr.Resets()))
	} else {
		logger.Info("Scrape finished", zap.Int("resets", tr.Resets()))
	}
	return err
}

// scrapeWorks runs each work in order. A failed work does not stop the loop;
// an interrupt does.
func scrapeWorks(ctx context.Context, asm *assemble.Assembler, works []catalog.Entry, logger *zap.Logger) ([]assemble.Summary, error) {
	var (
		summaries []assemble.Summary
		errs      []error
	)
	for _, entry := range works {
		if ctx.Err() != nil {
			break
		}
		summary, err := asm.Run(ctx, entry)
		summaries = append(summaries, summary)
		if err != nil {
			logger.Error("Work failed", zap.String("work", entry.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		logger.Info("Work done",
			zap.String("work", entry.ID),
			zap.Int("chapters", summary.Chapters),
			zap.Int("passages", summary.Passages),
			zap.Int("added", summary.Added),
			zap.Int("conflicts", summary.Conflicts),
			zap.Bool("saved", summary.Saved),
		)
		if summary.Interrupted {
			break
		}
	}
	return summaries, errors.Join(errs...)
}

func renderSummaries(summaries []assemble.Summary) string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		status := "ok"
		switch {
		case s.Interrupted:
			status = "interrupted"
		case s.Failed > 0:
			status = "incomplete"
		case s.Conflicts > 0:
			status = "conflicts"
		}
		rows = append(rows, []string{
			s.ID,
			s.Title,
			strconv.Itoa(s.Chapters),
			strconv.Itoa(s.Passages),
			strconv.Itoa(s.Added),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Conflicts),
			strconv.Itoa(s.Empty),
			strconv.Itoa(s.Failed),
			status,
		})
	}
	return renderTable("Scrape summary",
		[]string{"Work", "Title", "Chapters", "Passages", "Added", "Skipped", "Conflicts", "Empty", "Failed", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}
