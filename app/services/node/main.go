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
	"github.com/ardanlabs/grokchain/app/services/node/handlers"
	"github.com/ardanlabs/grokchain/business/sys/metrics"
	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database/storage/kvdb"
	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/blockchain/worker"
	"github.com/ardanlabs/grokchain/foundation/events"
	"github.com/ardanlabs/grokchain/foundation/logger"
	"github.com/ardanlabs/grokchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

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
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		State struct {
			Beneficiary    string `conf:"default:miner1"`
			Storage        string `conf:"default:badger"`
			DBPath         string `conf:"default:zblock/blocks.db"`
			GenesisPath    string `conf:"default:zblock/genesis.json"`
			SelectStrategy string `conf:"default:arrival"`
			VerifyWorkers  int    `conf:"default:8"`
		}
		Admission struct {
			RateLimit        int           `conf:"default:5"`
			RateWindow       time.Duration `conf:"default:1s"`
			FailureThreshold int           `conf:"default:3"`
			BanDuration      time.Duration `conf:"default:30m"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "grok chain node",
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

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account addresses.
	// The names come from the file names in the zblock/accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	// Need to load the private key file for the configured beneficiary so the
	// account can get credited with the mining rewards.
	path := fmt.Sprintf("%s%s.ecdsa", cfg.NameService.Folder, cfg.State.Beneficiary)
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// The chain store keeps every block under the key block_<number>. The
	// memory store is lost on shutdown and is meant for experiments.
	var store *kvdb.KVDB
	switch cfg.State.Storage {
	case "badger":
		if store, err = kvdb.NewBadger(cfg.State.DBPath); err != nil {
			return fmt.Errorf("unable to open chain store: %w", err)
		}
	case "memory":
		store = kvdb.NewMemory()
	default:
		return fmt.Errorf("unknown storage %q", cfg.State.Storage)
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	state, err := state.New(state.Config{
		BeneficiaryID:  database.PublicKeyToAccountID(privateKey.PublicKey),
		Host:           cfg.Web.PrivateHost,
		Storage:        store,
		Genesis:        gen,
		SelectStrategy: cfg.State.SelectStrategy,
		VerifyWorkers:  cfg.State.VerifyWorkers,
		Admission: admission.Config{
			RateLimit:        cfg.Admission.RateLimit,
			Window:           cfg.Admission.RateWindow,
			FailureThreshold: cfg.Admission.FailureThreshold,
			BanDuration:      cfg.Admission.BanDuration,
		},
		EvHandler: ev,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer func() {
		if err := state.Shutdown(); err != nil {
			log.Errorw("shutdown", "status", "chain store close", "ERROR", err)
		}
	}()

	// The worker package implements the mining workflow. The worker will
	// register itself with the state.
	wrk := worker.Run(state, ev)

	// The metrics read the node's counters on every scrape.
	mtx := metrics.New()
	mtx.RegisterState(state)
	mtx.RegisterWorker(wrk)

	// =========================================================================
	// Start Debug Service

	// The debug mux carries the profiling, health check and metrics
	// endpoints. It isn't shut down with load shedding.
	debugMux := handlers.DebugMux(build, log, state, mtx)

	go func() {
		log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start API Services

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listeners. Use a
	// buffered channel so the goroutines can exit if we don't collect the errors.
	serverErrors := make(chan error, 2)

	muxCfg := handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    state,
		NS:       ns,
		Evts:     evts,
		Metrics:  mtx,
	}

	// Both apis are served with the same timeouts.
	newServer := func(addr string, handler http.Handler) *http.Server {
		return &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.Web.ReadTimeout,
			WriteTimeout: cfg.Web.WriteTimeout,
			IdleTimeout:  cfg.Web.IdleTimeout,
			ErrorLog:     zap.NewStdLog(log.Desugar()),
		}
	}

	apis := []struct {
		name   string
		server *http.Server
	}{
		{"public", newServer(cfg.Web.PublicHost, handlers.PublicMux(muxCfg))},
		{"private", newServer(cfg.Web.PrivateHost, handlers.PrivateMux(muxCfg))},
	}

	for _, api := range apis {
		api := api
		go func() {
			log.Infow("startup", "status", api.name+" api router started", "host", api.server.Addr)
			serverErrors <- api.server.ListenAndServe()
		}()
	}

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
		evts.Shutdown()

		// Give outstanding requests a deadline for completion, then ask each
		// listener to shut down and shed load.
		for _, api := range apis {
			log.Infow("shutdown", "status", "shutdown "+api.name+" API started")

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			err := api.server.Shutdown(ctx)
			cancel()

			if err != nil {
				api.server.Close()
				return fmt.Errorf("could not stop %s service gracefully: %w", api.name, err)
			}
		}
	}

	return nil
}
