package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/audit"
	"github.com/JakeFAU/classical-corpus/internal/corpus"
)

// newAuditCmd creates the 'audit' subcommand.
func newAuditCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "audit [ids...]",
		Short: "Flag chapters whose translations look like boilerplate",
		Long: `Checks the stored documents (all of them when no ids are given) for
chapters where most translation passages are too short, contain site
boilerplate or are mostly Chinese script. With --fix the flagged chapters are
removed so the next scrape fetches them again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, args, fix)
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "remove flagged chapters and rewrite the documents")
	return cmd
}

func runAudit(cmd *cobra.Command, args []string, fix bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger().Named("audit")
	store := appInstance.GetStore()
	opts := appInstance.GetConfig().Audit

	ids := args
	if len(ids) == 0 {
		if ids, err = store.List(); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		logger.Warn("No documents to audit", zap.String("dir", store.Dir()))
		return nil
	}

	var (
		reports []audit.Report
		errs    []error
	)
	for _, id := range ids {
		report, err := auditWork(cmd.Context(), logger, store, id, opts, fix)
		if err != nil {
			logger.Error("Audit failed", zap.String("work", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if report.Fixed {
			logger.Info("Removed flagged chapters", zap.String("work", id), zap.Int("chapters", report.ChaptersRemoved))
		}
		reports = append(reports, report)
	}

	writeAuditReport(cmd.OutOrStdout(), reports)
	return errors.Join(errs...)
}

// auditWork audits one document. In fix mode the document is locked for the
// read-modify-write.
func auditWork(ctx context.Context, logger *zap.Logger, store *corpus.Store, id string, opts audit.Options, fix bool) (audit.Report, error) {
	if fix {
		unlock, err := store.Lock(id)
		if err != nil {
			return audit.Report{}, err
		}
		defer func() { _ = unlock() }()
	}

	w, err := store.Load(id)
	if err != nil {
		return audit.Report{}, err
	}
	if w == nil {
		return audit.Report{}, fmt.Errorf("%s: no document at %s", id, store.Path(id))
	}

	if err := w.Validate(); err != nil {
		logger.Warn("Document has structural problems", zap.String("work", id), zap.Error(err))
	}
	report := audit.Audit(w, opts)
	if !fix || report.OK() {
		return report, nil
	}
	audit.Fix(w, &report)
	if _, err := store.Save(ctx, w); err != nil {
		return report, fmt.Errorf("save %s: %w", id, err)
	}
	return report, nil
}

func writeAuditReport(out io.Writer, reports []audit.Report) {
	rows := make([][]string, 0, len(reports))
	var flagged [][]string
	for _, r := range reports {
		status := "ok"
		switch {
		case r.Fixed:
			status = fmt.Sprintf("fixed (%d removed)", r.ChaptersRemoved)
		case !r.OK():
			status = fmt.Sprintf("%d bad chapters", len(r.BadChapters))
		}
		rows = append(rows, []string{
			r.ID,
			r.Title,
			strconv.Itoa(r.TotalChapters),
			strconv.Itoa(r.TotalPassages),
			strconv.Itoa(r.BadPassages),
			status,
		})
		for _, bc := range r.BadChapters {
			flagged = append(flagged, []string{
				r.ID,
				bc.Number,
				bc.Slug,
				bc.Title,
				fmt.Sprintf("%d/%d", bc.BadPassages, bc.TotalPassages),
			})
		}
	}

	fmt.Fprintln(out, renderTable("Audit",
		[]string{"Work", "Title", "Chapters", "Passages", "Suspect", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	if len(flagged) > 0 {
		fmt.Fprintln(out, renderTable("Flagged chapters",
			[]string{"Work", "Chapter", "Slug", "Title", "Suspect"},
			flagged,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight},
		))
	}
}
