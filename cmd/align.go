package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/align"
	"github.com/JakeFAU/classical-corpus/internal/corpus"
	"github.com/JakeFAU/classical-corpus/internal/storage"
)

// newAlignCmd creates the 'align' subcommand.
func newAlignCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "align <id> <chapter>",
		Short: "Re-split one stored chapter into sentence-level pairs",
		Long: `Splits every passage of the given chapter into sentences on both sides
and pairs them by count. The chapter is rewritten in place unless --out names
a separate file for the aligned document.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlign(cmd, args[0], args[1], out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the aligned document here instead of updating the stored one")
	return cmd
}

func runAlign(cmd *cobra.Command, id, chapter, out string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger().Named("align").With(zap.String("work", id), zap.String("chapter", chapter))
	store := appInstance.GetStore()

	number, err := strconv.Atoi(chapter)
	if err != nil || number < 1 {
		return fmt.Errorf("chapter must be a positive number, got %q", chapter)
	}

	if out == "" {
		unlock, err := store.Lock(id)
		if err != nil {
			return err
		}
		defer func() { _ = unlock() }()
	}

	w, err := store.Load(id)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("%s: no document at %s", id, store.Path(id))
	}
	idx, ch, ok := w.FindNumber(chapter)
	if !ok {
		return fmt.Errorf("%s has no chapter %s", id, chapter)
	}

	before := len(ch.Passages)
	aligned, stats := align.AlignChapter(ch, number)
	w.Chapters[idx] = aligned
	logger.Info("Aligned chapter", zap.Int("passages_before", before), zap.Int("passages_after", stats.Passages))
	if stats.EmptySource > 0 {
		logger.Warn("Passages with empty Chinese text", zap.Int("count", stats.EmptySource))
	}
	if stats.EmptyTarget > 0 {
		logger.Warn("Passages with empty English text", zap.Int("count", stats.EmptyTarget))
	}

	if out != "" {
		return writeDocument(cmd, w, out)
	}
	if _, err := store.Save(cmd.Context(), w); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Aligned %s chapter %s: %d -> %d passages\n", id, chapter, before, stats.Passages)
	return nil
}

// writeDocument writes w to an arbitrary path with the store's encoding.
func writeDocument(cmd *cobra.Command, w *corpus.Work, path string) error {
	data, err := corpus.Encode(w)
	if err != nil {
		return err
	}
	dir, err := storage.NewLocalProvider(filepath.Dir(path))
	if err != nil {
		return err
	}
	if err := dir.Save(cmd.Context(), filepath.Base(path), data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
