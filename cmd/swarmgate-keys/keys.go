package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"swarmgate/internal/logger"
	"swarmgate/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type wrapFn func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func quotaString(rec model.KeyRecord) string {
	if rec.Quota == nil {
		return "unlimited"
	}
	return strconv.FormatInt(*rec.Quota, 10)
}

func newListCmd(wrap wrapFn) *cobra.Command {
	var (
		status  string
		asJSON  bool
		showKey bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List key records",
		Args:  cobra.NoArgs,
		RunE: wrap(func(cmd *cobra.Command, e *env, args []string) error {
			records, err := e.keys.List(cmd.Context())
			if err != nil {
				return err
			}
			filtered := records[:0]
			for _, rec := range records {
				if status == "" || string(rec.Status) == status {
					filtered = append(filtered, rec)
				}
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), filtered)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tTIER\tSTATUS\tPULLED\tQUOTA\tEMAIL\tCREATED")
			for _, rec := range filtered {
				key := "..." + logger.KeySuffix(rec.Key)
				if showKey {
					key = rec.Key
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					key, rec.Tier, rec.Status, rec.PairsPulled, quotaString(rec), rec.Email, rec.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "only list keys with this status (active, cancelled)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVar(&showKey, "show-keys", false, "print full keys instead of suffixes")
	return cmd
}

func newShowCmd(wrap wrapFn) *cobra.Command {
	return &cobra.Command{
		Use:   "show [key]",
		Short: "Show one key record",
		Args:  cobra.ExactArgs(1),
		RunE: wrap(func(cmd *cobra.Command, e *env, args []string) error {
			rec, err := e.keys.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		}),
	}
}

func newIssueCmd(wrap wrapFn) *cobra.Command {
	var email, tier string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a key without a payment",
		Args:  cobra.NoArgs,
		RunE: wrap(func(cmd *cobra.Command, e *env, args []string) error {
			res, err := e.keys.Issue(cmd.Context(), model.PaymentEvent{
				SessionID: "manual_" + uuid.NewString(),
				Email:     email,
				Tier:      tier,
				Origin:    "cli",
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Record)
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "customer email")
	cmd.Flags().StringVar(&tier, "tier", "", "tier name")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func newRevokeCmd(wrap wrapFn) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [key]",
		Short: "Cancel a key",
		Args:  cobra.ExactArgs(1),
		RunE: wrap(func(cmd *cobra.Command, e *env, args []string) error {
			rec, err := e.keys.Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked ...%s (%s)\n", logger.KeySuffix(rec.Key), rec.Status)
			return nil
		}),
	}
}

func newResetCmd(wrap wrapFn) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [key]",
		Short: "Zero the usage of an active key",
		Args:  cobra.ExactArgs(1),
		RunE: wrap(func(cmd *cobra.Command, e *env, args []string) error {
			rec, err := e.keys.Reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset ...%s, quota %s\n", logger.KeySuffix(rec.Key), quotaString(rec))
			return nil
		}),
	}
}

func newSnapshotCmd(wrap wrapFn) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Copy the registry to the ops store now",
		Args:  cobra.NoArgs,
		RunE: wrap(func(cmd *cobra.Command, e *env, args []string) error {
			if err := e.scheduler.Snapshot(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Snapshot written")
			return nil
		}),
	}
}
