package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"whalecopy/internal/alert"
	"whalecopy/internal/exchange"
	"whalecopy/internal/execution"
	"whalecopy/internal/ops"
	"whalecopy/internal/order"
	"whalecopy/internal/position"
	"whalecopy/internal/risk"
	"whalecopy/internal/schema"
	"whalecopy/internal/sizing"
	"whalecopy/internal/storage"
	"whalecopy/pkg/conn"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

// signalFile is the on-disk layout of the -signals input: whale trades
// to mirror, each paired with its market snapshot.
type signalFile struct {
	Signals []signalEntry `json:"signals"`
}

type signalEntry struct {
	Signal schema.WhaleSignal    `json:"signal"`
	Market schema.MarketSnapshot `json:"market"`
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 0, "Config reload interval (0=disable)")
	signalsPath := flag.String("signals", "", "Path to JSON whale signals to mirror on startup")
	simSeed := flag.Int64("sim-seed", 0, "Seed for the paper-trading venue")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	runtime := newRuntimeConfig(loaded)

	if loaded.Profiler.Enabled {
		profiler, err := startProfiler(loaded.Profiler)
		if err != nil {
			log.Fatalf("profiler start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	if err := run(ctx, runtime, *configPath, *configReload, *signalsPath, *simSeed); err != nil {
		log.Fatalf("trader failed: %v", err)
	}
}

func run(ctx context.Context, runtime *runtimeConfig, configPath string, configReload time.Duration, signalsPath string, simSeed int64) error {
	loaded := runtime.Load()

	orderStore, positionStore, closeDB, err := openStores(ctx, loaded.Postgres)
	if err != nil {
		return err
	}
	defer closeDB()

	client := exchange.NewSimClient(simSeed)
	machine := order.NewMachine(orderStore, loaded.Execution.MaxRetries)
	restored, err := machine.Restore(ctx)
	if err != nil {
		return err
	}
	if restored > 0 {
		logs.Infof("restored %d in-flight orders", restored)
	}

	limiter := execution.NewRateLimiter(loaded.Trading.RateLimitBurst, float64(loaded.Trading.RateLimitPerSecond))
	engine := execution.NewEngine(client, machine, limiter, loaded.Execution)
	batch := execution.NewBatchExecutor(engine, loaded.Trading.BatchConcurrency)

	riskMgr := risk.NewManager(loaded.Risk, alert.LogPublisher{})
	sizer := sizing.NewEngine(loaded.Sizing)
	manager := position.NewManager(sizer, riskMgr, engine, positionStore, loaded.Trading.StartingBalanceUSD)

	if configPath != "" && configReload > 0 {
		go watchConfig(ctx, configPath, configReload, func(next ops.Loaded) {
			runtime.Update(next)
			manager.SetSizer(sizing.NewEngine(next.Sizing))
		})
	}

	if signalsPath != "" {
		if err := mirrorSignals(ctx, manager, signalsPath); err != nil {
			return err
		}
	}

	loop := position.NewPriceLoop(manager, client, engine, loaded.PriceTickInterval)
	loop.Run(ctx)

	shutdown(machine, batch)
	return nil
}

func openStores(ctx context.Context, cfg ops.PostgresConfig) (order.Store, position.Store, func(), error) {
	if cfg.Database == "" {
		logs.Warnf("no database configured, state is in-memory only")
		return order.NewMemoryStore(), position.NewMemoryStore(), func() {}, nil
	}

	pg, err := conn.New(conn.Option{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, nil, err
	}

	store := storage.NewStore(pg.DB())
	if err := store.Migrate(); err != nil {
		_ = pg.Close()
		return nil, nil, nil, err
	}
	return store, store, func() { _ = pg.Close() }, nil
}

// shutdown withdraws whatever is still on the book. Runs on its own
// context; the run context is already cancelled.
func shutdown(machine *order.Machine, batch *execution.BatchExecutor) {
	open := machine.Open()
	if len(open) == 0 {
		return
	}
	ids := make([]string, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res := batch.CancelAll(ctx, ids, "shutdown")
	logs.Infof("shutdown cancel: %d of %d orders withdrawn", res.Successful, res.Total)
}

func mirrorSignals(ctx context.Context, manager *position.Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file signalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	for _, entry := range file.Signals {
		res := manager.Open(ctx, entry.Signal, entry.Market)
		switch {
		case res.Err != nil:
			logs.Errorf("mirror whale %s on %s: %v", entry.Signal.WhaleAddress, entry.Market.MarketID, res.Err)
		case res.Rejected:
			logs.Infof("mirror whale %s on %s rejected: %s", entry.Signal.WhaleAddress, entry.Market.MarketID, res.Reason)
		default:
			logs.Infof("mirroring whale %s on %s: $%.2f", entry.Signal.WhaleAddress, entry.Market.MarketID, res.Weight.SizeUSD)
		}
	}
	return nil
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Resolve(ops.FileConfig{})
	}
	return ops.Load(path)
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				logs.Warnf("config reload failed: %v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}

func startProfiler(cfg ops.ProfilerConfig) (*pyroscope.Profiler, error) {
	appName := cfg.AppName
	if appName == "" {
		appName = "whalecopy/trader"
	}
	addr := cfg.ServerAddress
	if addr == "" {
		addr = "http://localhost:4040"
	}
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}
