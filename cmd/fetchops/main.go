// Command fetchops sends one request through the fetchops engine and
// prints the outcome as JSON.
//
//	fetchops --base https://api.example.com --endpoint /users/:id --param id=7
//
// With --snapshot the response cache is loaded from and saved to an afs
// URL, so repeated invocations with --fetch answer from the cache while
// entries are fresh.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	var flagsErr *flags.Error
	switch {
	case err == nil:
	case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
	case errors.Is(err, errUnsuccessful):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
