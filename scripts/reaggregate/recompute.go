package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/services"
)

func newPairCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "pair <goal-id> <variant-id>",
		Short: "Recompute one goal-solution pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			goalID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid goal ID: %w", err)
			}
			variantID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid variant ID: %w", err)
			}

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			result, err := recomputePair(e, models.PairKey{GoalID: goalID, VariantID: variantID}, dryRun)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without writing")
	return cmd
}

func newAllCmd() *cobra.Command {
	var (
		dryRun  bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Recompute every pair that has a link or a rating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1")
			}

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			pairs, err := e.linkRepo.ListPairs(e.ctx)
			if err != nil {
				return fmt.Errorf("list pairs: %w", err)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, "DRY RUN - no changes will be made")
			}

			var (
				mu    sync.Mutex
				stats runStats
			)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)

			for _, pair := range pairs {
				g.Go(func() error {
					// Each pair gets its own connection so workers never
					// share a transaction.
					ctx, release, err := e.db.SystemContext(gctx)
					if err != nil {
						return fmt.Errorf("acquire connection: %w", err)
					}
					defer release()

					result, err := recomputePairWith(ctx, e, pair, dryRun)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						stats.failed++
						e.logger.Error("Recompute failed",
							zap.String("goal_id", pair.GoalID.String()),
							zap.String("variant_id", pair.VariantID.String()),
							zap.Error(err))
						return nil
					}
					stats.add(result)
					if result.Changed() || len(result.FieldErrors) > 0 {
						printResult(out, result)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%d pairs: %d changed, %d transitioned, %d with field errors, %d failed\n",
				len(pairs), stats.changed, stats.transitioned, stats.fieldErrors, stats.failed)
			if stats.failed > 0 {
				return fmt.Errorf("%d pairs failed", stats.failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without writing")
	cmd.Flags().IntVar(&workers, "workers", 4, "pairs recomputed concurrently")
	return cmd
}

type runStats struct {
	changed, transitioned, fieldErrors, failed int
}

func (s *runStats) add(r *services.RecomputeResult) {
	if r.Changed() {
		s.changed++
	}
	if r.Transitioned {
		s.transitioned++
	}
	if len(r.FieldErrors) > 0 {
		s.fieldErrors++
	}
}

func recomputePair(e *env, pair models.PairKey, dryRun bool) (*services.RecomputeResult, error) {
	return recomputePairWith(e.ctx, e, pair, dryRun)
}

func recomputePairWith(ctx context.Context, e *env, pair models.PairKey, dryRun bool) (*services.RecomputeResult, error) {
	if dryRun {
		return e.aggregation.Preview(ctx, pair.GoalID, pair.VariantID)
	}
	return e.aggregation.Recompute(ctx, pair.GoalID, pair.VariantID, services.TriggerBackfill)
}

func printResult(w io.Writer, r *services.RecomputeResult) {
	l := r.Link
	status := "unchanged"
	if r.Changed() {
		status = "changed"
	}
	if r.Transitioned {
		status = "transitioned to human"
	}
	fmt.Fprintf(w, "%s/%s: %s (mode=%s ratings=%d human=%d avg=%.2f fields=%d)\n",
		l.GoalID, l.VariantID, status, l.DisplayMode, l.RatingCount, l.HumanRatingCount, l.AvgEffectiveness, len(l.AggregatedFields))

	fields := make([]string, 0, len(r.FieldErrors))
	for f := range r.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(w, "  field %s kept previous distribution: %s\n", f, r.FieldErrors[f])
	}
}
