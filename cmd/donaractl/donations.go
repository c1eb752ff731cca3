package main

import (
	"context"
	"fmt"
	"strings"

	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/donation/identifier"
	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [identifier...]",
		Short: "Find the ledger donation for the given identifiers, creating it from Stripe if needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) error {
				res, err := svc.donations.ResolveRaw(ctx, args...)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [identifier]",
		Short: "Print a donation without writing to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := identifier.Merge(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc services) error {
				d, err := svc.donations.Fetch(ctx, ids)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}
}

func resendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend [identifier]",
		Short: "Email the donor a receipt, recording the donation first when it is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) error {
				res, err := svc.donations.ResendReceipt(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "receipt sent to %s for donation %s (already existed: %t)\n",
					res.Donation.Donor.Email, res.Donation.ID(), res.AlreadyExisted)
				return nil
			})
		},
	}
}

func distributionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution [donation-id] [status]",
		Short: "Move a donation to a new distribution status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := donationdomain.DistributionStatus(strings.ToLower(strings.TrimSpace(args[1])))
			if !status.Valid() {
				return fmt.Errorf("%w: %q", donationdomain.ErrInvalidDistributionStatus, args[1])
			}
			return withServices(cmd, func(ctx context.Context, svc services) error {
				d, err := svc.donations.UpdateDistributionStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}
}
