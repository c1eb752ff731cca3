package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func statementCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "statement [email]",
		Short: "Summarize a donor's donations, optionally as a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) error {
				if output == "" {
					summary, err := svc.statements.ForDonor(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), summary)
				}

				doc, err := svc.statements.RenderPDF(ctx, args[0])
				if err != nil {
					return err
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				if _, err := io.Copy(f, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "statement written to %s\n", output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write a PDF statement to this path instead of printing JSON")
	return cmd
}
