// Command bootstrap-admin seeds or promotes an administrator account in the datastore.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"aims-api/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Getenv, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	fs := flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError)
	fs.SetOutput(stdout)
	databaseURL := fs.String("database-url", "", "datastore address (postgres:// or redis://), defaults to AIMS_DATABASE_URL or DATABASE_URL")
	email := fs.String("email", "", "email address for the admin account")
	name := fs.String("name", "Administrator", "display name for a newly created admin account")
	password := fs.String("password", "", "password for the admin account")
	timeout := fs.Duration("timeout", 10*time.Second, "timeout for connecting and writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr := strings.TrimSpace(*databaseURL)
	if addr == "" && getenv != nil {
		for _, key := range []string{"AIMS_DATABASE_URL", "DATABASE_URL", "MONGO_URI"} {
			if addr = strings.TrimSpace(getenv(key)); addr != "" {
				break
			}
		}
	}
	if addr == "" {
		return errors.New("--database-url is required")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	repo, err := storage.Open(ctx, addr)
	if err != nil {
		return fmt.Errorf("open datastore %s: %w", storage.RedactAddr(addr), err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = repo.Close(closeCtx)
	}()

	user, created, err := storage.EnsureAdmin(ctx, repo, *email, *name, *password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	state := "promoted"
	if created {
		state = "created"
	}
	fmt.Fprintf(stdout, "Admin user %s (%s) %s successfully.\n", user.Email, user.Name, state)
	fmt.Fprintln(stdout, "Remember to rotate this password after the first login.")
	return nil
}
