package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/qchain/app/services/node/handlers"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/oracle"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage"
	"github.com/ardanlabs/qchain/foundation/blockchain/worker"
	"github.com/ardanlabs/qchain/foundation/events"
	"github.com/ardanlabs/qchain/foundation/logger"
	"github.com/ardanlabs/qchain/foundation/nameservice"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using -ldflags at build time.
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
		CORSOrigins     []string      `conf:"default:*"`
		}
		State struct {
			KeyPath        string        `conf:"default:zblock/accounts/miner1.key"`
			DBPath         string        `conf:"default:zblock/miner1/"`
			Storage        string        `conf:"default:disk"`
			GenesisPath    string        `conf:"default:zblock/genesis.json"`
			MiningMode     string        `conf:"default:exclusive"`
			MiningInterval time.Duration `conf:"default:10s"`
			MaxRetries     int           `conf:"default:3"`
			MiningEnabled  bool          `conf:"default:true"`
			KnownPeers     []string      `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "quantum resistant proof of work node",
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
	// Blockchain Support

	// The genesis file holds the parameters every node on the chain must
	// agree on.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	// Need to load the key file for the node so transactions can be issued
	// from the node account. A key is generated on first start.
	signer, err := loadSigner(log, cfg.State.KeyPath, gen.Algorithm)
	if err != nil {
		return fmt.Errorf("unable to load key for node: %w", err)
	}
	log.Infow("startup", "status", "node account", "account", signer.Fingerprint(), "algorithm", signer.Algorithm())

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account fingerprints.
	// The names come from the key file names in the accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// The dataset behind the proof of work hash is expensive to build and is
	// built once.
	log.Infow("startup", "status", "building hash oracle dataset", "items", gen.Oracle.Items)
	hasher, err := oracle.New([]byte(gen.OracleSeed), gen.Oracle)
	if err != nil {
		return fmt.Errorf("unable to build hash oracle: %w", err)
	}

	serializer, err := storage.Open(cfg.State.Storage, cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}

	// A peer set is a collection of known nodes in the network so transactions
	// and blocks can be shared.
	peerSet := peer.NewSet()
	for _, host := range cfg.State.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. The viewer messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The gateway moves blocks and transactions between this node and its
	// peers over the private API.
	gw := gateway.New(gateway.Config{
		Host:       cfg.Web.PrivateHost,
		KnownPeers: peerSet,
		Transport:  gateway.NewHTTPTransport(cfg.Web.PrivateHost, &http.Client{Timeout: cfg.Web.WriteTimeout}),
		EvHandler:  ev,
	})
	gw.Start()
	defer gw.Shutdown()

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	state, err := state.New(state.Config{
		Signer:        signer,
		Host:          cfg.Web.PrivateHost,
		Genesis:       gen,
		Hasher:        hasher,
		Storage:       serializer,
		Gateway:       gw,
		MiningMode:    cfg.State.MiningMode,
		MaxRetries:    cfg.State.MaxRetries,
		MiningEnabled: cfg.State.MiningEnabled,
		EvHandler:     ev,
	})
	if err != nil {
		return err
	}
	defer state.Shutdown()

	// The worker package implements the different workflows such as mining,
	// inbound event processing, and peer updates. The worker will register
	// itself with the state.
	worker.Run(state, cfg.State.MiningInterval, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, state)

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
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:    shutdown,
		Log:         log,
		State:       state,
		NS:          ns,
		Evts:        evts,
		CORSOrigins: cfg.Web.CORSOrigins,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    state,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
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
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// loadSigner reads the node key file, generating and saving a new key with
// the chain algorithm when the file does not exist.
func loadSigner(log *zap.SugaredLogger, path string, algorithm string) (*signature.Signer, error) {
	signer, err := signature.Load(path)
	switch {
	case err == nil:
		return signer, nil

	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	signer, err = signature.New(algorithm)
	if err != nil {
		return nil, err
	}

	if err := signer.Save(path); err != nil {
		return nil, err
	}

	log.Infow("startup", "status", "generated node key", "path", path)

	return signer, nil
}
