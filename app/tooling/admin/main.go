// This program performs administrative tasks against the blocks a node has
// stored while the node is not running.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/qchain/app/tooling/admin/commands"
	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/oracle"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage"
	"github.com/ardanlabs/qchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using -ldflags at build time.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
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
	cfg := struct {
		conf.Version
		Args  conf.Args
		State struct {
			DBPath      string `conf:"default:zblock/miner1/"`
			Storage     string `conf:"default:disk"`
			GenesisPath string `conf:"default:zblock/genesis.json"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "offline ledger inspection and maintenance",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	hasher, err := oracle.New([]byte(gen.OracleSeed), gen.Oracle)
	if err != nil {
		return fmt.Errorf("building hash oracle: %w", err)
	}

	serializer, err := storage.Open(cfg.State.Storage, cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	// Opening the database replays and validates every stored block.
	db, err := database.New(gen, hasher, serializer, ev)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return processCommands(cfg.Args, db)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, db *database.Database) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(os.Stdout, args, db); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}

	case "blocks":
		if err := commands.Blocks(os.Stdout, args, db); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}

	case "validate":
		if err := commands.Validate(os.Stdout, db); err != nil {
			return fmt.Errorf("validating chain: %w", err)
		}

	case "reset":
		if err := commands.Reset(os.Stdout, db); err != nil {
			return fmt.Errorf("resetting chain: %w", err)
		}

	default:
		fmt.Println("bals [account]: show balances")
		fmt.Println("blocks [from] [to]: show committed blocks")
		fmt.Println("validate: check every stored block")
		fmt.Println("reset: remove every stored block back to genesis")
		fmt.Println("provide a command to get more help.")
	}

	return nil
}
