// Package servecmder provides the serve command, which runs the API
// server against a configured store backend.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/branchweave/branchweave/api"
	"github.com/branchweave/branchweave/pkg/branch"
	"github.com/branchweave/branchweave/pkg/config"
	"github.com/branchweave/branchweave/pkg/events"
	"github.com/branchweave/branchweave/pkg/events/kafka"
	"github.com/branchweave/branchweave/pkg/events/nop"
	"github.com/branchweave/branchweave/pkg/fork"
	"github.com/branchweave/branchweave/pkg/logger"
	"github.com/branchweave/branchweave/pkg/repo"
	"github.com/branchweave/branchweave/pkg/share"
	"github.com/branchweave/branchweave/pkg/store"
	"github.com/branchweave/branchweave/pkg/store/memory"
	"github.com/branchweave/branchweave/pkg/store/postgres"
	"github.com/branchweave/branchweave/pkg/store/sqlite"
)

type ServeCommander struct {
	listen     string
	backend    string
	dsn        string
	configDir  string
	debug      bool
	maxLineage uint
	maxBatch   uint
}

const serveLongDesc string = `Run the branchweave API server.

Store backend and listen address are read from .branchweave/config.toml
(or ~/.branchweave/config.toml) and may be overridden with flags.`

const serveShortDesc string = "Run the branchweave API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the API server to listen on (overrides config)")
	cmd.Flags().StringVarP(&cmder.backend, "backend", "b", "", "Store backend: memory, sqlite, or postgres (overrides config)")
	cmd.Flags().StringVar(&cmder.dsn, "dsn", "", "Store backend connection string (overrides config)")
	cmd.Flags().UintVar(&cmder.maxLineage, "max-lineage-depth", 0, "Maximum lineage depth (overrides config)")
	cmd.Flags().UintVar(&cmder.maxBatch, "max-batch-size", 0, "Maximum batch write size (overrides config)")

	return cmd
}

func (c *ServeCommander) run() error {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.applyOverrides(cfg)

	log := logger.New(logger.WithPretty(true), logger.WithDebug(c.debug))

	st, err := c.createStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher, err := c.createPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	r := repo.New(st, int(cfg.Store.MaxLineageDepth), publisher)
	b := branch.New(st, publisher)
	f := fork.New(st, publisher)
	sh := share.New(st)

	apiConfig := api.Config{ListenAddr: cfg.Server.Listen}
	apiServer := api.NewServer(apiConfig, r, b, f, sh, log)

	log.Info("starting server",
		"listen", cfg.Server.Listen,
		"backend", cfg.Store.Backend,
		"events_enabled", cfg.Events.Enabled,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return apiServer.Shutdown()
	}
}

func (c *ServeCommander) applyOverrides(cfg *config.Config) {
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}
	if c.backend != "" {
		cfg.Store.Backend = c.backend
	}
	if c.dsn != "" {
		cfg.Store.DSN = c.dsn
	}
	if c.maxLineage != 0 {
		cfg.Store.MaxLineageDepth = c.maxLineage
	}
	if c.maxBatch != 0 {
		cfg.Store.MaxBatchSize = c.maxBatch
	}
}

func (c *ServeCommander) createStore(cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		st, err := sqlite.New(dsn)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return st, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires store.dsn to be set")
		}
		st, err := postgres.New(context.Background(), cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q (available: memory, sqlite, postgres)", cfg.Store.Backend)
	}
}

func (c *ServeCommander) createPublisher(cfg *config.Config, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return nop.NewPublisher(), nil
	}

	brokers := strings.Split(cfg.Events.KafkaBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	log.Info("publishing events to kafka", "brokers", strconv.Itoa(len(brokers))+" broker(s)", "topic", cfg.Events.KafkaTopic)
	return kafka.New(brokers, cfg.Events.KafkaTopic), nil
}
