package main

import (
	"database/sql"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/metrics"
	"github.com/josh-kwaku/umrah-va-gateway/internal/queue"
	"github.com/josh-kwaku/umrah-va-gateway/internal/repository"
	"github.com/josh-kwaku/umrah-va-gateway/internal/service"
)

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue virtual accounts and purge stale idempotency entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			// Sweeping never reaches the gateway, so the simulated client is enough.
			vas := service.NewVirtualAccountService(
				repository.NewVirtualAccountRepository(db),
				repository.NewCustomerRepository(db),
				gateway.NewSimulated(gateway.SimulatedServerKey),
				metrics.New(prometheus.NewRegistry()),
				0,
			)
			now := time.Now()
			expired, err := vas.SweepExpired(ctx, now)
			if err != nil {
				return err
			}
			purged, err := repository.NewIdempotencyRepository(db).CleanExpired(ctx, now)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "expired %d virtual accounts, removed %d idempotency entries\n", expired, purged)
			return nil
		},
	}
}

func (a *app) notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and retry payment notifications",
	}

	var (
		tenant string
		limit  int
	)
	failed := &cobra.Command{
		Use:   "failed",
		Short: "List failed notifications for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := a.notificationService(db)
			list, total, err := svc.ListNotifications(ctx, tenantID, domain.NotificationStatusFailed, limit, 0)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTRANSACTION\tVA NUMBER\tAMOUNT\tERROR\tRECEIVED")
			for _, n := range list {
				reason := ""
				if n.ProcessingError != nil {
					reason = *n.ProcessingError
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", n.ID, n.TransactionID, n.VANumber, n.Amount, reason, n.CreatedAt.Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d failed notifications\n", len(list), total)
			return nil
		},
	}
	failed.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	failed.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	failed.MarkFlagRequired("tenant")

	var retryTenant string
	retry := &cobra.Command{
		Use:   "retry <notification-id>",
		Short: "Return a failed notification to pending and queue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(retryTenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid notification id: %w", err)
			}
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := a.notificationService(db).RetryNotification(ctx, tenantID, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notification %s queued for retry\n", id)
			return nil
		},
	}
	retry.Flags().StringVar(&retryTenant, "tenant", "", "tenant id")
	retry.MarkFlagRequired("tenant")

	cmd.AddCommand(failed, retry)
	return cmd
}

func (a *app) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the notification queue",
	}

	var limit int
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered jobs awaiting operator review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			q := queue.New(db, queue.Config{}, nil, a.logger)
			jobs, err := q.ListDead(ctx, limit)
			if err != nil {
				return err
			}
			stats, err := q.Stats(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tNOTIFICATION\tATTEMPTS\tLAST ERROR\tUPDATED")
			for _, j := range jobs {
				lastErr := ""
				if j.LastError != nil {
					lastErr = *j.LastError
				}
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n", j.ID, j.NotificationID, j.Attempts, j.MaxAttempts, lastErr, j.UpdatedAt.Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued=%d running=%d done=%d dead=%d\n",
				stats[queue.StatusQueued], stats[queue.StatusRunning], stats[queue.StatusDone], stats[queue.StatusDead])
			return nil
		},
	}
	dead.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	cmd.AddCommand(dead)
	return cmd
}

func (a *app) notificationService(db *sql.DB) *service.NotificationService {
	return service.NewNotificationService(
		repository.NewDB(db),
		repository.NewNotificationRepository(db),
		queue.New(db, queue.Config{}, nil, a.logger),
	)
}
