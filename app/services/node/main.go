package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/ethsim/app/services/node/handlers"
	"github.com/ardanlabs/ethsim/business/sys/metrics"
	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv/backend"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/blockchain/worker"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/logger"
	"github.com/ardanlabs/ethsim/foundation/nameservice"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Perform the startup and shutdown sequence.
	if err := run(); err != nil {
		fmt.Println("startup:", err)
		os.Exit(1)
	}
}

func run() error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			RPCHost         string        `conf:"default:0.0.0.0:8545"`
			KeepAlive       time.Duration `conf:"default:5s"`
			Origin          string        `conf:"default:*"`
			WSEnabled       bool          `conf:"default:true"`
		}
		Log struct {
			File       string
			MaxSizeMB  int `conf:"default:100"`
			MaxBackups int `conf:"default:3"`
			MaxAgeDays int `conf:"default:28"`
		}
		Chain struct {
			ChainID   uint64 `conf:"default:1337"`
			NetworkID uint64
			GasLimit  uint64 `conf:"default:6721975"`
			GasPrice  uint64 `conf:"default:2000000000"`
			Coinbase  string
			Timestamp int64
			BlockTime time.Duration
		}
		Accounts struct {
			Seed                string `conf:"default:ethsim"`
			Mnemonic            string `conf:"mask"`
			Total               int    `conf:"default:10"`
			DefaultBalanceEther uint64 `conf:"default:100"`
			Secure              bool
			KeysFolder          string
		}
		DB struct {
			Backend     string `conf:"default:memory"`
			Path        string
			CacheBlocks int `conf:"default:128"`
		}
		Genesis struct {
			File string
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "deterministic instamining ethereum node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// Construct the application logger.
	log, err := logger.NewWithFile("NODE", logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}
	defer log.Sync()

	// =========================================================================
	// App Starting

	fmt.Println(`  _____ _____ _   _ ____ ___ __  __ `)
	fmt.Println(` | ____|_   _| | | / ___|_ _|  \/  |`)
	fmt.Println(` |  _|   | | | |_| \___ \| || |\/| |`)
	fmt.Println(` | |___  | | |  _  |___) | || |  | |`)
	fmt.Println(` |_____| |_| |_| |_|____/___|_|  |_|`)
	fmt.Print("\n")

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Account Support

	// The generator derives every created account from the seed or mnemonic,
	// so two nodes started with the same configuration own the same keys.
	gen, err := accounts.NewGenerator(cfg.Accounts.Seed, cfg.Accounts.Mnemonic)
	if err != nil {
		return fmt.Errorf("constructing account generator: %w", err)
	}

	mgr, err := accounts.New(accounts.Config{
		Generator: gen,
		Secure:    cfg.Accounts.Secure,
	})
	if err != nil {
		return fmt.Errorf("constructing account manager: %w", err)
	}

	log.Infow("startup", "status", "accounts", "mnemonic", mgr.Mnemonic())

	// =========================================================================
	// Genesis Support

	gen0 := genesis.Default()
	if cfg.Genesis.File != "" {
		if gen0, err = genesis.Load(cfg.Genesis.File); err != nil {
			return fmt.Errorf("unable to load genesis file: %w", err)
		}
	}
	applyChain(&gen0, cfg.Chain.ChainID, cfg.Chain.NetworkID, cfg.Chain.GasLimit, cfg.Chain.GasPrice, cfg.Chain.Coinbase, cfg.Chain.Timestamp)

	for i := 0; i < cfg.Accounts.Total; i++ {
		addr, err := mgr.Create(nil)
		if err != nil {
			return fmt.Errorf("creating account %d: %w", i, err)
		}
		gen0.Credit(addr, cfg.Accounts.DefaultBalanceEther)

		log.Infow("startup", "status", "account", "index", i, "account", addr)
	}

	// =========================================================================
	// Name Service Support

	// The nameservice package imports the key files found in the keys folder
	// as named, unlocked accounts.
	ns, err := nameservice.New(cfg.Accounts.KeysFolder, mgr)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	store, err := backend.Open(cfg.DB.Backend, cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.DB.Backend, err)
	}

	// Every committed header is fanned out to the web socket subscribers
	// through the events package.
	heads := events.New[*types.Header]()

	// The blockchain packages accept a function of this signature to allow the
	// application to log.
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(state.Config{
		Genesis:     gen0,
		Store:       store,
		CacheBlocks: cfg.DB.CacheBlocks,
		Accounts:    mgr,
		Heads:       publisher{heads},
		BlockTime:   cfg.Chain.BlockTime,
		EvHandler:   ev,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer st.Shutdown()

	if latest, err := st.RetrieveLatestBlock(); err == nil {
		metrics.SetBlockNumber(latest.Number())
	}

	// The worker package is the single point of ordering for every chain
	// mutation. The worker will register itself with the state.
	worker.Run(st, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start RPC Service

	log.Infow("startup", "status", "initializing JSON-RPC support")

	// Construct the mux for the JSON-RPC calls.
	rpcMux := handlers.RPCMux(handlers.MuxConfig{
		Shutdown:  shutdown,
		Log:       log,
		State:     st,
		Heads:     heads,
		Build:     build,
		Origin:    cfg.Web.Origin,
		WSEnabled: cfg.Web.WSEnabled,
		KeepAlive: cfg.Web.KeepAlive,
	})

	// Construct a server to service the requests against the mux.
	rpc := http.Server{
		Addr:         cfg.Web.RPCHost,
		Handler:      rpcMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "rpc router started", "host", rpc.Addr)
		serverErrors <- rpc.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		heads.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown rpc API started")
		if err := rpc.Shutdown(ctx); err != nil {
			rpc.Close()
			return fmt.Errorf("could not stop rpc service gracefully: %w", err)
		}
	}

	return nil
}

// applyChain overrides the genesis parameters with the configured values.
// Zero values keep what the genesis already holds.
func applyChain(g *genesis.Genesis, chainID, networkID, gasLimit, gasPrice uint64, coinbase string, timestamp int64) {
	if chainID != 0 {
		g.ChainID = chainID
	}
	switch {
	case networkID != 0:
		g.NetworkID = networkID
	case g.NetworkID == 0:
		g.NetworkID = g.ChainID
	}
	if gasLimit != 0 {
		g.GasLimit = gasLimit
	}
	if gasPrice != 0 {
		g.GasPrice = gasPrice
	}
	if coinbase != "" {
		g.Coinbase = common.HexToAddress(coinbase).Hex()
	}
	if timestamp != 0 {
		g.Date = time.Unix(timestamp, 0).UTC()
	}
}

// publisher records the chain height before handing the header to the
// subscribers.
type publisher struct {
	*events.Events[*types.Header]
}

// Send implements the state.Publisher interface.
func (p publisher) Send(header *types.Header) {
	metrics.SetBlockNumber(header.Number.Uint64())
	p.Events.Send(header)
}
