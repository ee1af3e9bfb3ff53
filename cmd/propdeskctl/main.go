// Command propdeskctl talks to a PropDesk server from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/propdesk/propdesk/internal/apiclient"
)

var version = "dev"

const defaultServerURL = "http://localhost:41700"

type app struct {
	serverURL string
	tokenPath string
	format    string

	out    io.Writer
	in     io.Reader
	client *apiclient.Client
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{out: os.Stdout, in: os.Stdin}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "propdeskctl",
		Short:             "PropDesk CRM command line",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	serverURL := os.Getenv("PROPDESK_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	root.PersistentFlags().StringVar(&a.serverURL, "server", serverURL, "server base URL (env PROPDESK_URL)")
	root.PersistentFlags().StringVar(&a.tokenPath, "token-file", "", "session token file (default <config dir>/propdesk/token)")
	root.PersistentFlags().StringVarP(&a.format, "output", "o", "", "output format: table, json, yaml (default table on a terminal, json otherwise)")

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.passwdCommand(),
		a.leadsCommand(),
		a.propertiesCommand(),
		a.offersCommand(),
		a.transactionsCommand(),
		a.backupsCommand(),
		a.watchCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.client != nil {
		return nil
	}
	path := a.tokenPath
	if path == "" {
		p, err := apiclient.DefaultTokenPath()
		if err != nil {
			return err
		}
		path = p
	}
	a.client = apiclient.New(a.serverURL, apiclient.NewFileTokenStore(path))
	a.client.OnUnauthorized = func() {
		fmt.Fprintln(cmd.ErrOrStderr(), "Session expired. Run `propdeskctl login` again.")
	}
	return nil
}
