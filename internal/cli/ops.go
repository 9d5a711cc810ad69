package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Kwazak/umnfestival2026-sub004/internal/app"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/cleanup"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/referral"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/synclock"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile orders against the payment gateway",
	}

	orderCmd := &cobra.Command{
		Use:   "order <number>",
		Short: "Reconcile a single order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			var svc *reconcile.Service
			opts := fx.Options(app.Core, fx.Populate(&svc))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				res, err := svc.ReconcileOrder(ctx, args[0], reconcile.Options{
					Source:       reconcile.SourceCLI,
					Force:        force,
					OverrideLock: force,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s -> %s)\n", res.OrderNumber, res.Outcome, res.OldStatus, res.NewStatus)
				return nil
			})
		},
	}
	orderCmd.Flags().Bool("force", false, "Re-apply the gateway status and bypass a manual sync lock")

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Reconcile non-final orders created in the last N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			return runBatch(cmd, reconcile.Pending(days))
		},
	}
	pendingCmd.Flags().Int("days", 7, "Look-back window in days")

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Reconcile every order created in the last N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			return runBatch(cmd, reconcile.Recent(days))
		},
	}
	recentCmd.Flags().Int("days", 7, "Look-back window in days")

	fulfillmentsCmd := &cobra.Command{
		Use:   "fulfillments",
		Short: "Retry the confirmation of paid orders that never received one",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			var svc *reconcile.Service
			opts := fx.Options(app.Core, fx.Populate(&svc))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				report, err := svc.ResumeFulfillments(ctx, limit, reconcile.SourceCLI)
				printReport(cmd.OutOrStdout(), report)
				return err
			})
		},
	}
	fulfillmentsCmd.Flags().Int("limit", 100, "Maximum orders to retry")

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Reconcile every order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, reconcile.All())
		},
	}

	for _, c := range []*cobra.Command{pendingCmd, recentCmd, allCmd} {
		c.Flags().Bool("async", false, "Queue the batch for the worker instead of running it here")
	}

	cmd.AddCommand(orderCmd, pendingCmd, recentCmd, allCmd, fulfillmentsCmd)
	return cmd
}

func runBatch(cmd *cobra.Command, sel reconcile.Selector) error {
	async, _ := cmd.Flags().GetBool("async")
	var (
		svc   *reconcile.Service
		queue *reconcile.Queue
	)
	opts := fx.Options(app.Core, fx.Populate(&svc, &queue))
	return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
		out := cmd.OutOrStdout()
		if async {
			job := reconcile.Job{Kind: reconcile.JobBatch, Selector: &sel, Source: reconcile.SourceCLI, RequestedAt: time.Now().UTC()}
			if err := queue.Enqueue(ctx, job); err != nil {
				return err
			}
			fmt.Fprintf(out, "queued %s\n", sel)
			return nil
		}

		report, err := svc.ReconcileBatch(ctx, sel, reconcile.SourceCLI)
		printReport(out, report)
		return err
	})
}

func printReport(w io.Writer, r reconcile.Report) {
	fmt.Fprintf(w, "%s: total=%d updated=%d fulfilled=%d unchanged=%d skipped=%d failed=%d in %s\n",
		r.Selector, r.Total, r.Updated, r.Fulfilled, r.Unchanged, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order maintenance",
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete abandoned pending orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, _ := cmd.Flags().GetFloat64("hours")
			var sweeper *cleanup.Sweeper
			opts := fx.Options(app.Core, fx.Populate(&sweeper))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				threshold := sweeper.DefaultThreshold()
				if hours > 0 {
					threshold = time.Duration(hours * float64(time.Hour))
				}
				deleted, err := sweeper.Run(ctx, threshold)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d abandoned orders older than %s\n", deleted, threshold)
				return nil
			})
		},
	}
	cleanupCmd.Flags().Float64("hours", 0, "Age threshold in hours (defaults to configuration)")

	lockCmd := &cobra.Command{
		Use:   "lock <number>",
		Short: "Exclude an order from gateway sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return withRegistry(cmd, func(ctx context.Context, reg *synclock.Registry) error {
				order, err := reg.Lock(ctx, args[0], reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s locked: %s\n", order.Number, order.SyncLockReason)
				return nil
			})
		},
	}
	lockCmd.Flags().String("reason", "", "Why the order is settled by hand")
	_ = lockCmd.MarkFlagRequired("reason")

	unlockCmd := &cobra.Command{
		Use:   "unlock <number>",
		Short: "Return an order to gateway sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *synclock.Registry) error {
				order, err := reg.Unlock(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s unlocked\n", order.Number)
				return nil
			})
		},
	}

	importCmd := &cobra.Command{
		Use:   "import-offline",
		Short: "Create locked on-site orders from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			orders, err := readOfflineOrders(path)
			if err != nil {
				return err
			}
			return withRegistry(cmd, func(ctx context.Context, reg *synclock.Registry) error {
				for _, in := range orders {
					order, err := reg.CreateOfflineOrder(ctx, in)
					if err != nil {
						return fmt.Errorf("import %q: %w", in.Number, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s created (%s)\n", order.Number, order.Status)
				}
				return nil
			})
		},
	}
	importCmd.Flags().String("file", "", "JSON file holding one order or an array of orders")
	_ = importCmd.MarkFlagRequired("file")

	cmd.AddCommand(cleanupCmd, lockCmd, unlockCmd, importCmd)
	return cmd
}

func withRegistry(cmd *cobra.Command, fn func(context.Context, *synclock.Registry) error) error {
	var reg *synclock.Registry
	opts := fx.Options(app.Core, fx.Populate(&reg))
	return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
		return fn(ctx, reg)
	})
}

// readOfflineOrders accepts either a single object or an array.
func readOfflineOrders(path string) ([]synclock.OfflineOrder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) > 0 && raw[0] == '{' {
		var one synclock.OfflineOrder
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return []synclock.OfflineOrder{one}, nil
	}
	var many []synclock.OfflineOrder
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return many, nil
}

func newReferralsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "referrals",
		Short: "Referral code maintenance",
	}
	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Recount referral uses from sold tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			var svc *referral.Service
			opts := fx.Options(app.Core, fx.Populate(&svc))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				changed, err := svc.Recompute(ctx, code)
				if err != nil {
					return err
				}
				for _, c := range changed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", c.Code, c.Uses)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d referral codes updated\n", len(changed))
				return nil
			})
		},
	}
	recompute.Flags().String("code", "", "Only recompute this code")
	cmd.AddCommand(recompute)
	return cmd
}
