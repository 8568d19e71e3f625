package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"inboxdb/internal/app"
	"inboxdb/pkg/config"
	"inboxdb/pkg/ingest"
	"inboxdb/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env")

	dir := flag.String("dir", "", "directory of JSON payload files to import")
	db := flag.String("db", "./.inboxdb", "Pebble DB path")
	cfgPath := flag.String("config", "./config.yaml", "Path to config file")
	workers := flag.Int("workers", 0, "payload-level fan-out (overrides config; 1 means sequential)")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "--dir required")
		os.Exit(2)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	eff, err := config.LoadEffective(config.Flags{DB: *db, Config: *cfgPath, Set: set})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)
	defer logger.Sync()

	st, err := app.OpenStore(eff)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sources, err := ingest.DirSources(*dir)
	if err != nil {
		log.Fatalf("scan %s: %v", *dir, err)
	}
	if len(sources) == 0 {
		fmt.Printf("No payload files found in %s\n", *dir)
		return
	}

	n := *workers
	if n <= 0 {
		n = eff.Config.Ingest.Workers
	}
	if n <= 0 {
		n = 1
	}

	orc := ingest.NewOrchestrator(st)
	res, err := importAll(context.Background(), orc, sources, n)

	fmt.Printf("Payloads:       %d (skipped %d)\n", len(sources), res.SkippedPayloads)
	fmt.Printf("Inserted:       %d\n", res.Inserted)
	fmt.Printf("Status updates: %d\n", res.StatusUpdated)
	fmt.Printf("Skipped entries: %d\n", res.SkippedEntries)
	if err != nil {
		log.Fatalf("import aborted: %v", err)
	}
}

// importAll fans payload processing out over n workers. Dedup safety
// comes from the store's atomic per-record operations, so payload order
// across workers does not matter.
func importAll(ctx context.Context, orc *ingest.Orchestrator, sources []ingest.Source, n int) (ingest.Result, error) {
	if n == 1 {
		return orc.ProcessBatch(ctx, sources)
	}

	var mu sync.Mutex
	var total ingest.Result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			res, err := orc.ProcessSource(gctx, src)
			mu.Lock()
			total.Merge(res)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	return total, err
}
