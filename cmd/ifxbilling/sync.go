package main

import (
	"context"
	"fmt"
	"io"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine"
	fiinedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/domain"
	fiineservice "github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/service"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

func syncAccounts(args []string, stdout, stderr io.Writer) int {
	var username string
	fs := pflag.NewFlagSet("sync-accounts", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&username, "user", "", "sync a single username; all users when empty")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var svc *fiineservice.SyncService
	return withApp(stderr, func(ctx context.Context) int {
		var (
			res *fiinedomain.SyncResult
			err error
		)
		if username != "" {
			res, err = svc.SyncUser(ctx, username)
		} else {
			res, err = svc.SyncAll(ctx)
		}
		if err != nil {
			fmt.Fprintf(stderr, "unable to synchronize fiine accounts: %v\n", err)
			return 1
		}

		fmt.Fprintf(stdout, "%d users: %d accounts created, %d updated, %d authorizations, %d invalidated\n",
			res.Users, res.AccountsCreated, res.AccountsUpdated, res.Authorizations, res.Invalidated)
		for _, msg := range res.Errors {
			fmt.Fprintf(stdout, "  %s\n", msg)
		}
		return 0
	},
		coreModules(),
		fiine.Module,
		fx.Populate(&svc),
	)
}
