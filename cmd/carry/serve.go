package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carrysync/carry/pkg/broadcast"
	"github.com/carrysync/carry/pkg/cluster"
	"github.com/carrysync/carry/pkg/config"
	"github.com/carrysync/carry/pkg/health"
	"github.com/carrysync/carry/pkg/log"
	"github.com/carrysync/carry/pkg/metrics"
	"github.com/carrysync/carry/pkg/persistence/postgres"
	"github.com/carrysync/carry/pkg/server"
	"github.com/carrysync/carry/pkg/storage"
	"github.com/carrysync/carry/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a carry server replica",
	Long: `Run a carry server replica: an HTTP+JSON Push/Pull endpoint backed
by a durable Postgres operation log, with an optional Raft-elected
canonical peer and Redis cross-replica broadcast.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().String("node-id", "", "Node ID (overrides config)")
	serveCmd.Flags().String("bind-addr", "", "HTTP bind address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Postgres.Host == "" {
		return fmt.Errorf("serve requires a postgres.host: a server replica durably logs accepted operations there")
	}

	sch, err := loadSchema(cfg.SchemaPath)
	if err != nil {
		return err
	}

	st := store.New(cfg.NodeID, sch)

	bolt, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}
	defer bolt.Close()

	if snap, err := bolt.LoadSnapshot(); err == nil && snap.NodeID == cfg.NodeID {
		if err := st.ImportState(snap); err != nil {
			log.Logger.Warn().Err(err).Msg("discarding incompatible local snapshot")
		}
	}

	collector := metrics.NewCollector(st, collectionNames(sch))
	collector.Start()
	defer collector.Stop()
	metrics.SetVersion(Version)

	pool, err := postgres.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	opLog := postgres.NewOperationLog(pool)
	metrics.RegisterComponent("postgres", true, "connected")

	var cl *cluster.Cluster
	if cfg.Cluster.BindAddr != "" {
		cl = cluster.New(cfg.Cluster)
		if err := cl.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap raft cluster: %w", err)
		}
		defer cl.Shutdown()
		metrics.RegisterComponent("raft", true, "bootstrapped")
	}

	var caster *broadcast.Broadcaster
	if cfg.Redis.Addr != "" {
		caster, err = broadcast.New(context.Background(), cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to broadcast bus: %w", err)
		}
		defer caster.Close()
	}

	serverCfg := server.Config{
		Strategy:        cfg.Strategy,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	}
	if caster != nil {
		serverCfg.Publisher = caster
	}
	srv := server.New(st, opLog, cl, serverCfg)
	httpServer := &http.Server{Addr: cfg.Server.BindAddr, Handler: srv.Router()}
	metrics.RegisterComponent("server", true, "ready")

	if caster != nil {
		subCtx, cancelSub := context.WithCancel(context.Background())
		defer cancelSub()
		go func() {
			if err := caster.Subscribe(subCtx, srv.BroadcastLocal); err != nil && subCtx.Err() == nil {
				log.Logger.Warn().Err(err).Msg("broadcast subscription ended")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("carry server listening on %s (node %s)\n", cfg.Server.BindAddr, cfg.NodeID)

	hl := startHealthLoop(cfg)
	defer hl.stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	if err := bolt.SaveSnapshot(st.ExportState()); err != nil {
		return fmt.Errorf("save snapshot on shutdown: %w", err)
	}
	return nil
}

func loadServeConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if nodeID, _ := cmd.Flags().GetString("node-id"); nodeID != "" {
		cfg.NodeID = nodeID
	}
	if bindAddr, _ := cmd.Flags().GetString("bind-addr"); bindAddr != "" {
		cfg.Server.BindAddr = bindAddr
	}
	if cfg.NodeID == "" {
		return config.Config{}, fmt.Errorf("node id is required (set nodeId in config or pass --node-id)")
	}
	return cfg, nil
}

// healthLoop periodically runs dependency checkers and reports into
// pkg/metrics, backing /healthz.
type healthLoop struct {
	stopCh chan struct{}
}

func startHealthLoop(cfg config.Config) *healthLoop {
	h := &healthLoop{stopCh: make(chan struct{})}

	type namedChecker struct {
		name    string
		checker health.Checker
	}
	var checkers []namedChecker
	if cfg.Postgres.Host != "" {
		checkers = append(checkers, namedChecker{
			name:    "postgres",
			checker: health.NewTCPChecker(fmt.Sprintf("%s:%d", cfg.Postgres.Host, cfg.Postgres.Port)),
		})
	}

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				for _, nc := range checkers {
					result := nc.checker.Check(context.Background())
					metrics.UpdateComponent(nc.name, result.Healthy, result.Message)
				}
			}
		}
	}()
	return h
}

func (h *healthLoop) stop() {
	close(h.stopCh)
}
