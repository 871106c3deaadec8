package main

import (
	"errors"

	"github.com/jrsteele09/go-invoice-session/internal/app"
	"github.com/jrsteele09/go-invoice-session/internal/config"
	"github.com/jrsteele09/go-invoice-session/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errNotSignedIn = errors.New("not signed in, run 'invoicectl login'")

type cli struct {
	v          *viper.Viper
	envFile    string
	appOptions []app.Option
	app        *app.App
}

func newRootCmd(appOptions ...app.Option) *cobra.Command {
	c := &cli{v: viper.New(), appOptions: appOptions}

	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Invoicing API session CLI",
		Long: `invoicectl keeps a signed-in session for the invoicing API on this machine.

Example usage:
  invoicectl login --email owner@acme.test   # password is read from stdin
  invoicectl whoami                          # show the cached user
  invoicectl token                           # print a valid ID token, refreshing if needed
  invoicectl api get invoices                # call the API with the session's token
  invoicectl logout`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading INVOICE_ variables")
	flags.String("idp-endpoint", "", "identity provider endpoint")
	flags.String("client-id", "", "identity provider client id")
	flags.String("store", "", "session store driver: memory, file, sqlite or redis")
	flags.String("store-path", "", "file store directory or sqlite database path")
	flags.String("redis-url", "", "redis url for the redis store")
	flags.String("namespace", "", "session namespace")
	flags.String("api-url", "", "invoicing API base url")
	flags.String("log-level", "", "log level")

	for key, flag := range map[string]string{
		config.KeyIdentityEndpoint: "idp-endpoint",
		config.KeyClientID:         "client-id",
		config.KeyStoreDriver:      "store",
		config.KeyStorePath:        "store-path",
		config.KeyRedisURL:         "redis-url",
		config.KeyNamespace:        "namespace",
		config.KeyAPIBaseURL:       "api-url",
		config.KeyLogLevel:         "log-level",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newLoginCmd(c),
		newTokenCmd(c),
		newWhoamiCmd(c),
		newStatusCmd(c),
		newLogoutCmd(c),
		newAPICmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}
	cfg := config.New(c.v)
	logger := logging.New(cmd.ErrOrStderr(), cfg.GetEnv(), cfg.GetLogLevel())

	a, err := app.New(cfg, logger, c.appOptions...)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) teardown(*cobra.Command, []string) error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}
