package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/spf13/cobra"
)

func createManualCmd() *cobra.Command {
	var (
		input       donationdomain.ManualDonationInput
		method      string
		donatedOn   string
		causes      []string
		oneWay      bool
		causeRegion string
	)

	cmd := &cobra.Command{
		Use:   "create-manual",
		Short: "Record a cash, cheque or wire donation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if donatedOn != "" {
				parsed, err := time.Parse("2006-01-02", donatedOn)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", donatedOn, err)
				}
				input.DonatedAt = parsed
			}
			if method != "" {
				input.PaymentMethod = &donationdomain.PaymentMethod{
					Type: donationdomain.PaymentMethodType(strings.ToLower(strings.TrimSpace(method))),
				}
			}
			for _, label := range causes {
				input.Causes = append(input.Causes, donationdomain.CauseAllocation{
					Label:  strings.TrimSpace(label),
					OneWay: oneWay,
					Region: strings.TrimSpace(causeRegion),
				})
			}

			return withServices(cmd, func(ctx context.Context, svc services) error {
				d, err := svc.donations.CreateManual(ctx, input)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&input.Donor.FirstName, "first-name", "", "Donor first name")
	flags.StringVar(&input.Donor.LastName, "last-name", "", "Donor last name")
	flags.StringVar(&input.Donor.Email, "email", "", "Donor email")
	flags.StringVar(&input.Donor.ID, "donor-id", "", "Portal account id of the donor")
	flags.Int64Var(&input.AmountCents, "amount-cents", 0, "Amount donated in cents")
	flags.Int64Var(&input.FeesCoveredCents, "fees-covered-cents", 0, "Fees the donor chose to cover, in cents")
	flags.StringVar(&input.Currency, "currency", "cad", "ISO 4217 currency code")
	flags.BoolVar(&input.Live, "live", true, "Record as a live donation")
	flags.StringVar(&method, "method", "cheque", "Payment method (cash, cheque, wire)")
	flags.StringVar(&donatedOn, "date", "", "Donation date as YYYY-MM-DD (defaults to today)")
	flags.StringSliceVar(&causes, "cause", nil, "Cause label, repeatable")
	flags.BoolVar(&oneWay, "one-way", false, "Mark the causes as one-way allocations")
	flags.StringVar(&causeRegion, "region", "", "Region the causes are allocated to")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("amount-cents")

	return cmd
}
