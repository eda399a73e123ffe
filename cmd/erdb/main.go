// Command erdb wires together the storage core: load or bootstrap the
// data directory, start the checkpoint scheduler, and then block forever
// while the scheduler runs. It is reference wiring only (spec §6
// frames the CLI/environment layer as "reference only, not core") — there
// is no SQL front end here, since the tokenizer/parser/planner that would
// turn text into a PlanNode tree are out of scope for this module.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/dbcore/erdb/internal/catalog"
	"github.com/dbcore/erdb/internal/checkpoint"
	"github.com/dbcore/erdb/internal/config"
	"github.com/dbcore/erdb/internal/storage/buffer"
	"github.com/dbcore/erdb/internal/storage/pager"
	"github.com/dbcore/erdb/internal/txn"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("erdb: %v", err)
		}
		cfg = loaded
	}

	instanceID := uuid.New()
	logger := log.New(os.Stderr, fmt.Sprintf("erdb[%s] ", instanceID), log.LstdFlags)

	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		logger.Fatalf("creating data directory %q: %v", cfg.DataDirectory, err)
	}

	fileManager, err := pager.Open(cfg.DataDirectory)
	if err != nil {
		logger.Fatalf("opening data directory: %v", err)
	}
	pool := buffer.New(fileManager, cfg.BufferPoolSize, logger)
	locks := txn.NewLockManager()
	mgr := txn.NewManager(pool, locks, logger)

	var cat *catalog.Catalog
	if cfg.Bootstrap {
		if err := mgr.Bootstrap(); err != nil {
			logger.Fatalf("bootstrapping transaction log: %v", err)
		}
		cat, err = catalog.Bootstrap(pool, mgr)
		if err != nil {
			logger.Fatalf("bootstrapping catalog: %v", err)
		}
	} else {
		if err := mgr.Load(); err != nil {
			logger.Fatalf("loading transaction log: %v", err)
		}
		cat, err = catalog.Load(pool, mgr)
		if err != nil {
			logger.Fatalf("loading catalog: %v", err)
		}
	}
	_ = cat

	sched := checkpoint.New(pool, logger)
	if err := sched.Start(cfg.CheckpointCron); err != nil {
		logger.Fatalf("starting checkpoint scheduler: %v", err)
	}
	defer sched.Stop()

	logger.Printf("erdb ready: data_directory=%s buffer_pool_size=%d", cfg.DataDirectory, cfg.BufferPoolSize)
	select {}
}
