package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/account"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/batchlock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/calculator"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/generator"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/product"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/rating"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/usage"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/db"
	"go.uber.org/fx"
)

const usageText = `usage: ifxbilling <command> [flags]

commands:
  calculate-billing-records   create billing records for a month of usage
  sync-accounts               synchronize accounts and authorizations from fiine
  migrate                     apply schema migrations
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	switch args[0] {
	case "calculate-billing-records":
		return calculateBillingRecords(args[1:], stdout, stderr)
	case "sync-accounts":
		return syncAccounts(args[1:], stdout, stderr)
	case "migrate":
		return migrate(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usageText)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usageText)
		return 2
	}
}

// coreModules wires configuration, observability, storage and the
// repositories every command needs.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		product.Module,
		account.Module,
	)
}

// billingModules adds the billing engine on top of coreModules.
func billingModules() fx.Option {
	return fx.Options(
		usage.Module,
		rating.Module,
		calculator.Module,
		billingrecord.Module,
		batchlock.Module,
		generator.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// withApp starts an fx app built from opts, runs fn and stops the app.
func withApp(stderr io.Writer, fn func(ctx context.Context) int, opts ...fx.Option) int {
	app := fx.New(opts...)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}

	code := fn(context.Background())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(stderr, "shutdown failed: %v\n", err)
	}
	return code
}
