package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/di/providers"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/service"
	"github.com/dseinapp/dsein-server/internal/store"
	badgerstore "github.com/dseinapp/dsein-server/internal/store/badger"
	"github.com/dseinapp/dsein-server/internal/validation"
)

// env is the configuration and store one command runs against.
type env struct {
	cfg   *config.Config
	log   *logger.Logger
	store store.Store
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("Failed to close store", "error", err)
	}
}

// loadConfig feeds the global flags through the server's config loader so
// both resolve defaults and file locations the same way.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var args []string
	for _, name := range []string{"store", "data-path", "mongo-uri", "mongo-database", "env-file", "log-level"} {
		if v := c.String(name); v != "" {
			args = append(args, "-"+name, v)
		}
	}
	return config.Load(args)
}

func openEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	st, err := providers.OpenStore(c.Context, cfg, log.WithComponent("store"), nil)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, store: st}, nil
}

func purgeExpired(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	invites := service.NewInviteService(e.store, nil, nil, nil, e.log.WithComponent("invites"), e.cfg.Invites.Expiry)

	var n int
	if referrer := c.String("referrer"); referrer != "" {
		n, err = invites.PurgeExpired(c.Context, referrer, c.Duration("max-age"))
	} else {
		n, err = invites.PurgeAllExpired(c.Context, c.Duration("max-age"))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "purged %d expired invite(s)\n", n)
	return nil
}

func reconcile(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	follows := service.NewFollowService(e.store, nil, nil, e.log.WithComponent("follow"))
	report, err := follows.ReconcileCounters(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, report)
}

func resolve(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: dseinctl resolve <username>", 2)
	}

	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	directory := service.NewDirectoryService(e.store, nil, validation.New(), nil, e.log.WithComponent("directory"), e.cfg.Invites.DefaultQuota)
	user, err := directory.ResolveByUsername(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c, user)
}

func inspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverBadger {
		return cli.Exit(fmt.Sprintf("inspect only supports the badger store, configured: %s", cfg.Store.Driver), 2)
	}

	path := filepath.Join(cfg.Store.DataPath, "db")
	stats, err := badgerstore.Inspect(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PREFIX\tKEYS\tVALUE BYTES\n")
	var keys int
	var bytes int64
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\n", st.Prefix, st.Keys, st.Bytes)
		keys += st.Keys
		bytes += st.Bytes
	}
	fmt.Fprintf(w, "total\t%d\t%d\n", keys, bytes)
	return w.Flush()
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
