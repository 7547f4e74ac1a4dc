package main

import (
	"context"
	"fmt"
	"io"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/migration"
	"github.com/spf13/pflag"
)

// migrate applies migrations from the migration module's invoke hook;
// starting the app is the whole command.
func migrate(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	return withApp(stderr, func(context.Context) int {
		fmt.Fprintln(stdout, "schema is up to date")
		return 0
	},
		coreModules(),
		migration.Module,
	)
}
