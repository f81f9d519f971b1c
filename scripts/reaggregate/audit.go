package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/normalizer"
)

func newAuditCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report stored rating fields that no longer pass validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize <= 0 {
				return fmt.Errorf("--batch-size must be positive")
			}

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			a := newAuditor(normalizer.New(categories.Default()))
			categoryOf := make(map[uuid.UUID]categories.Category)

			after := uuid.Nil
			for {
				batch, err := e.ratingRepo.ListAfter(e.ctx, after, batchSize)
				if err != nil {
					return fmt.Errorf("list ratings: %w", err)
				}
				for _, r := range batch {
					category, ok := categoryOf[r.VariantID]
					if !ok {
						category, err = e.solutionRepo.GetCategoryForVariant(e.ctx, r.VariantID)
						if err != nil {
							return fmt.Errorf("category for variant %s: %w", r.VariantID, err)
						}
						categoryOf[r.VariantID] = category
					}
					a.check(r, category)
				}
				if len(batch) < batchSize {
					break
				}
				after = batch[len(batch)-1].ID
			}

			a.report(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "ratings per page")
	return cmd
}

// auditor re-normalizes stored fields. Stored values were canonical when
// written, so any difference means the schema moved or the row was edited
// outside the service.
type auditor struct {
	normalizer *normalizer.Normalizer
	checked    int
	findings   []auditFinding
}

type auditFinding struct {
	ratingID uuid.UUID
	category categories.Category
	problem  string
}

func newAuditor(n *normalizer.Normalizer) *auditor {
	return &auditor{normalizer: n}
}

func (a *auditor) check(r *models.Rating, category categories.Category) {
	a.checked++
	res := a.normalizer.Normalize(category, r.SolutionFields, normalizer.Options{AllowPartial: true})
	for _, fe := range res.Errors {
		a.findings = append(a.findings, auditFinding{ratingID: r.ID, category: category, problem: fe.Error()})
	}
	if !res.IsValid {
		return
	}
	for name, stored := range r.SolutionFields {
		if !sameValue(stored, res.Fields[name]) {
			a.findings = append(a.findings, auditFinding{
				ratingID: r.ID,
				category: category,
				problem:  fmt.Sprintf("%s: stored %v is not canonical (%v)", name, stored, res.Fields[name]),
			})
		}
	}
}

func (a *auditor) report(w io.Writer) {
	for _, f := range a.findings {
		fmt.Fprintf(w, "%s [%s] %s\n", f.ratingID, f.category, f.problem)
	}
	fmt.Fprintf(w, "\n%d ratings checked, %d problems\n", a.checked, len(a.findings))
}

// sameValue compares a stored JSON-decoded value with its normalized form.
func sameValue(stored, canonical any) bool {
	switch c := canonical.(type) {
	case []string:
		var items []any
		switch s := stored.(type) {
		case []any:
			items = s
		case []string:
			for _, v := range s {
				items = append(items, v)
			}
		default:
			return false
		}
		if len(items) != len(c) {
			return false
		}
		for i := range c {
			if items[i] != c[i] {
				return false
			}
		}
		return true
	default:
		return stored == canonical
	}
}
