package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sinefunc/imagery/internal/app"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix       = "imagery"
	shutdownTimeout = 10 * time.Second
)

type cli struct {
	v   *viper.Viper
	app *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:               "imagery",
		Short:             "Store uploaded images as a fixed set of resized variants",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.init,
	}

	f := root.PersistentFlags()
	f.String("config", "", "YAML config file")
	f.String("root", "", "root directory, IMAGERY_ROOT when empty")
	f.String("backend", "", "storage backend: local, remote or null")
	f.String("log-level", "", "log level: debug, info, warn or error")

	cobra.CheckErr(c.v.BindPFlag("config", f.Lookup("config")))
	cobra.CheckErr(c.v.BindPFlag("root", f.Lookup("root")))
	cobra.CheckErr(c.v.BindPFlag("backend", f.Lookup("backend")))
	cobra.CheckErr(c.v.BindPFlag("log.level", f.Lookup("log-level")))

	root.AddCommand(
		c.serveCmd(),
		c.saveCmd(),
		c.deleteCmd(),
		c.urlCmd(),
		c.fileCmd(),
		c.sizesCmd(),
	)

	return root
}

func (c *cli) init(cmd *cobra.Command, _ []string) error {
	config, err := app.Load(c.v.GetString("config"))
	if err != nil {
		return err
	}

	if err := override(c.v, &config); err != nil {
		return fmt.Errorf("override config: %w", err)
	}

	a, err := app.New(config, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("new app: %w", err)
	}
	c.app = a

	return nil
}

// override applies flags and IMAGERY_<SECTION>_<KEY> environment variables
// over the file.
func override(v *viper.Viper, config *app.Config) error {
	set := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}

	set("root", &config.Root)
	set("directory", &config.Directory)
	set("default_variant", &config.DefaultVariant)
	set("backend", &config.Backend)
	set("log.level", &config.Log.Level)
	set("log.format", &config.Log.Format)
	set("http.address", &config.HTTP.Address)
	set("http.body_limit", &config.HTTP.BodyLimit)
	set("converter.engine", &config.Converter.Engine)
	set("converter.bin", &config.Converter.Bin)
	set("remote.provider", &config.Remote.Provider)
	set("remote.bucket", &config.Remote.Bucket)
	set("remote.distribution_domain", &config.Remote.DistributionDomain)
	set("remote.host", &config.Remote.Host)
	set("remote.endpoint", &config.Remote.Endpoint)
	set("remote.region", &config.Remote.Region)
	set("remote.credentials_file", &config.Remote.CredentialsFile)
	set("missing.prefix", &config.Missing.Prefix)

	var err error
	if v.IsSet("missing.enabled") {
		if config.Missing.Enabled, err = cast.ToBoolE(v.Get("missing.enabled")); err != nil {
			return fmt.Errorf("missing.enabled: %w", err)
		}
	}
	if v.IsSet("converter.workers") {
		if config.Converter.Workers, err = cast.ToIntE(v.Get("converter.workers")); err != nil {
			return fmt.Errorf("converter.workers: %w", err)
		}
	}
	if v.IsSet("converter.timeout") {
		if config.Converter.Timeout, err = cast.ToDurationE(v.Get("converter.timeout")); err != nil {
			return fmt.Errorf("converter.timeout: %w", err)
		}
	}
	if v.IsSet("remote.timeout") {
		if config.Remote.Timeout, err = cast.ToDurationE(v.Get("remote.timeout")); err != nil {
			return fmt.Errorf("remote.timeout: %w", err)
		}
	}

	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}

	cmd.Flags().String("address", "", "listen address")
	cobra.CheckErr(c.v.BindPFlag("http.address", cmd.Flags().Lookup("address")))

	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	var chErr = make(chan error)
	go func() {
		defer close(chErr)
		if err := c.app.Run(); err != nil {
			chErr <- fmt.Errorf("run app: %w", err)
		}
	}()

	select {
	case err, ok := <-chErr:
		if !ok {
			err = fmt.Errorf("close app without error")
		}

		return err
	case <-ctx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown app: %w", err)
	}

	return nil
}

func (c *cli) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <namespace> <key> <file|->",
		Short: "Convert an image into every variant of a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Record(args[0], args[1])
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}

			var src io.Reader = cmd.InOrStdin()
			if args[2] != "-" {
				f, err := os.Open(args[2])
				if err != nil {
					return fmt.Errorf("open source: %w", err)
				}
				defer f.Close()
				src = f
			}

			if err := r.Save(cmd.Context(), src); err != nil {
				return fmt.Errorf("save: %w", err)
			}
			r.SetExisting(args[2])

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range r.Sizes().Names() {
				u, err := r.URL(name)
				if err != nil {
					return fmt.Errorf("url %s: %w", name, err)
				}
				fmt.Fprintf(w, "%s\t%s\n", name, u)
			}

			return w.Flush()
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <namespace> <key>",
		Short: "Delete every variant of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Record(args[0], args[1])
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}

			if err := r.Delete(cmd.Context()); err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			return nil
		},
	}
}

func (c *cli) urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <namespace> <key> [variant]",
		Short: "Print the public URL of a variant",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Record(args[0], args[1])
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}

			u, err := r.URL(variantArg(args))
			if err != nil {
				return fmt.Errorf("url: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), u)

			return nil
		},
	}
}

func (c *cli) fileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <namespace> <key> [variant]",
		Short: "Print the local path of a variant",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Record(args[0], args[1])
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}

			p, err := r.File(variantArg(args))
			if err != nil {
				return fmt.Errorf("file: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), p)

			return nil
		},
	}
}

func (c *cli) sizesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sizes",
		Short: "List the configured variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sizes := c.app.Sizes()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range sizes.Names() {
				g, err := sizes.Resolve(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, g.Resize, g.Extent)
			}

			return w.Flush()
		},
	}
}

func variantArg(args []string) string {
	if len(args) > 2 {
		return args[2]
	}

	return ""
}
