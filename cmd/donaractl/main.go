package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/donation"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/gateway"
	"github.com/smallbiznis/donara/internal/migration"
	"github.com/smallbiznis/donara/internal/notification"
	"github.com/smallbiznis/donara/internal/observability"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	"github.com/smallbiznis/donara/internal/providers"
	"github.com/smallbiznis/donara/internal/statement"
	"github.com/smallbiznis/donara/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var Version = "dev"

const startTimeout = 30 * time.Second

// services are the dependencies a command needs once the fx graph is started.
type services struct {
	donations  donationdomain.Service
	statements *statement.Service
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "donaractl",
		Short:         "Operate the donara donation ledger from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(resendCmd())
	rootCmd.AddCommand(statementCmd())
	rootCmd.AddCommand(createManualCmd())
	rootCmd.AddCommand(distributionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withServices starts the same service graph as the HTTP server, minus the
// listener, runs fn and stops the graph again.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc services) error) error {
	var svc services
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		gateway.Module,
		donation.Module,
		providers.Module,
		notification.Module,
		statement.Module,
		fx.Populate(&svc.donations, &svc.statements),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	user := os.Getenv("USER")
	ctx := obscontext.WithActor(cmd.Context(), obscontext.ActorCLI, user)
	return fn(ctx, svc)
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
