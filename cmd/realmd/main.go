// Command realmd is a small host that delegates authentication to an
// OpenID-Connect realm: password and browser logins, per-request token
// refresh, role lookups and an admin view of the validity cache.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/realmauth/config"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configFile string
	envFile    string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Delegated OIDC authentication host",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (default: search ./cmd/realmd, ./config, .)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", ".env file to load before reading the environment")

	root.AddCommand(newServeCommand(flags), newCheckCommand(flags), newVersionCommand())
	return root
}

func (f *globalFlags) load() (Config, error) {
	var opts []config.LoaderOption
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	}
	if f.envFile != "" {
		opts = append(opts, config.WithEnvFile(f.envFile))
	}
	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			log := logger.New(&cfg.Logging, cfg.Name)
			logger.SetGlobalLogger(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			if err := a.start(ctx); err != nil {
				_ = a.stop(context.Background())
				return err
			}
			log.Info("realmd started", logger.Fields("version", version.Get().String(), "environment", cfg.Environment))

			<-ctx.Done()
			log.Info("shutdown requested")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.stop(shutdownCtx)
		},
	}
}

func newCheckCommand(flags *globalFlags) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify provider discovery and, optionally, a directory lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger.New(&cfg.Logging, cfg.Name), nil)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), a, user, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "resolve this user's roles through the admin API")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the realmd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", serviceName, version.Get())
		},
	}
}

func runCheck(ctx context.Context, a *app, user string, out io.Writer) error {
	eps, err := a.realm.Verifier().Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	fmt.Fprintf(out, "issuer:        %s\n", eps.Issuer)
	fmt.Fprintf(out, "authorization: %s\n", eps.Authorization)
	fmt.Fprintf(out, "token:         %s\n", eps.Token)
	fmt.Fprintf(out, "jwks:          %s\n", eps.JWKS)

	if user == "" {
		return nil
	}
	id, err := a.realm.Coordinator().LoadUser(ctx, user)
	if err != nil {
		return fmt.Errorf("user %s: %w", user, err)
	}
	fmt.Fprintf(out, "user %s roles: %v\n", id.Name, id.Roles)
	return nil
}
