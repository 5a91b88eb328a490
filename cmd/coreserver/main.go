// Command coreserver is the process entrypoint: it loads configuration,
// opens the repository and applies migrations, loads the item
// catalogue, and wires the session registry, outbound connection pool,
// packet dispatcher, combat engine, and event bus into the accept/
// receive/send/maintenance server loops (SPEC_FULL.md §6, cmd/coreserver).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wydcore/server/internal/combat"
	"github.com/wydcore/server/internal/config"
	"github.com/wydcore/server/internal/dispatch"
	"github.com/wydcore/server/internal/eventbus"
	"github.com/wydcore/server/internal/item"
	"github.com/wydcore/server/internal/pool"
	"github.com/wydcore/server/internal/repository"
	"github.com/wydcore/server/internal/server"
	"github.com/wydcore/server/internal/session"
)

const (
	exitNormal     = 0
	exitFatalInit  = 1
	exitConfigBad  = 2
	exitBindFailed = 3
)

const (
	configPathEnv  = "WYDCORE_CONFIG"
	defaultConfig  = "config/coreserver.toml"
	catalogPathEnv = "WYDCORE_ITEM_CATALOG"
	defaultCatalog = "data/itemlist.bin"
)

// defaultGlobalRateCapPerMinute is the spec's documented default for the
// dispatcher's global per-session rate cap across all commands combined.
const defaultGlobalRateCapPerMinute = 3000

// basicAttackSkillID is the one skill seeded into the combat engine's
// skill table so CmdCombatAttack's optional skill id has something real
// to resolve against end to end; a deployment with a real skill catalogue
// registers its own definitions here instead.
const basicAttackSkillID = 1

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("coreserver: shutting down", "signal", sig)
		cancel()
	}()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	cfgPath := defaultConfig
	if p := os.Getenv(configPathEnv); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadCoreServer(cfgPath)
	if err != nil {
		slog.Error("coreserver: config load failed", "error", err)
		return exitConfigBad
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	})))
	slog.Info("coreserver: config loaded", "name", cfg.Server.Name, "bind", fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port))

	repo, err := repository.Open(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Error("coreserver: repository open failed", "error", err)
		return exitFatalInit
	}
	defer repo.Close()
	slog.Info("coreserver: repository connected")

	if err := repository.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		slog.Error("coreserver: migrations failed", "error", err)
		return exitFatalInit
	}
	slog.Info("coreserver: migrations applied")

	catalogPath := defaultCatalog
	if p := os.Getenv(catalogPathEnv); p != "" {
		catalogPath = p
	}
	catalog, err := item.Load(catalogPath)
	if err != nil {
		slog.Error("coreserver: item catalogue load failed", "error", err)
		return exitFatalInit
	}
	slog.Info("coreserver: item catalogue loaded", "path", catalogPath)

	registry := session.NewRegistry(cfg.Server.MaxConnectionsPerIP)

	bus := eventbus.NewBus()
	busCtx, stopBus := context.WithCancel(ctx)
	defer stopBus()
	go bus.RunDispatch(busCtx)

	peerPool := pool.New(cfg.Server.MaxConnections)
	peerPool.SetPublisher(bus)
	peerPoolCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	go peerPool.RunHealthProbe(peerPoolCtx)

	world := combat.NewMapWorld()
	skills := combat.NewSkillTable()
	skills.Register(combat.Skill{
		ID:             basicAttackSkillID,
		DamageType:     combat.DamagePhysical,
		DamageBase:     20,
		DamagePerLevel: 5,
		SuccessRate:    90,
		TargetType:     combat.TargetEnemy,
	})
	engine := combat.NewEngine(world, world, bus, skills, rand.New(rand.NewSource(time.Now().UnixNano())))

	d := dispatch.NewDispatcher(dispatch.LogAndDropUnknown, nil, defaultGlobalRateCapPerMinute)
	registerHandlers(d, deps{
		repo:    repo,
		bus:     bus,
		peers:   peerPool,
		catalog: catalog,
		engine:  engine,
		world:   world,
	})

	srv := server.New(
		registry,
		d,
		time.Duration(cfg.Server.ConnectionTimeoutSec)*time.Second,
		time.Minute,
		256,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port)
		if err := srv.Run(gctx, addr); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("coreserver: server stopped with error", "error", err)
		return exitBindFailed
	}

	slog.Info("coreserver: shutdown complete")
	return exitNormal
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
