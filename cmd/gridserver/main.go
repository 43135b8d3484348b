package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/apache/arrow/go/v15/arrow/flight"

	"gridserver/internal/alias"
	"gridserver/internal/audit"
	"gridserver/internal/colormap"
	"gridserver/internal/config"
	"gridserver/internal/dataset"
	"gridserver/internal/flightsvc"
	"gridserver/internal/handlers"
	"gridserver/internal/heartbeat"
	"gridserver/internal/imagecache"
	"gridserver/internal/interp"
	"gridserver/internal/ncloader"
	"gridserver/internal/pgalias"
)

func main() {
	// 1. Configuration (CLI > env > YAML file > defaults).
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 2. Load the dataset into memory once, up front.
	store, err := ncloader.New().Load(cfg.DataFile)
	if err != nil {
		log.Fatalf("loading %s: %v", cfg.DataFile, err)
	}
	log.Printf("loaded %s: %d dimensions, %d variables", cfg.DataFile, len(store.Dimensions), len(store.Variables))

	// 3. Alias table (canonical -> file-specific dimension names), either
	// from static configuration or a Postgres-backed mapping table.
	table, err := loadAliasTable(cfg)
	if err != nil {
		log.Fatalf("alias table: %v", err)
	}

	defaultMethod, aerr := interp.ParseMethod(cfg.DefaultInterpolation)
	if aerr != nil {
		log.Fatalf("default interpolation: %v", aerr)
	}

	// 4. Colormap registry, with any configured WASM plugins loaded in.
	ctx := context.Background()
	colormaps, err := loadColormaps(ctx, cfg)
	if err != nil {
		log.Fatalf("colormaps: %v", err)
	}

	// 5. Async usage-event recorder (Kafka fan-out when configured; no local Parquet file).
	recorder := newRecorder(cfg)
	defer recorder.Close()

	// 6. Optional second-tier image cache (in-process LRU, write-through Redis).
	imgCache, err := newImageCache(cfg)
	if err != nil {
		log.Fatalf("image cache: %v", err)
	}

	// 7. Handler wiring and HTTP routing.
	deps := &handlers.Deps{
		Store:          store,
		Alias:          table,
		MaxPoints:      cfg.MaxDataPoints,
		DefaultMethod:  defaultMethod,
		Colormaps:      colormaps,
		ArrowBatchRows: cfg.ArrowBatchRows,
		Audit:          recorder,
		ImageCache:     imgCache,
		Revision:       cfg.DataFile,
	}

	router := gin.Default()
	handlers.Register(router, deps)

	monitor := heartbeat.NewMonitor(store)
	router.GET("/heartbeat", monitor.Handler())
	go monitor.RunDiscoveryLoop(ctx, cfg.DiscoveryURL, 30*time.Second)

	// 8. Optional Arrow Flight listener, sharing the same dataset + alias
	// table as the HTTP /data endpoint.
	if cfg.FlightPort != 0 {
		go serveFlight(store, table, cfg)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("gridserver listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("router.Run: %v", err)
	}
}

func loadAliasTable(cfg *config.Config) (*alias.Table, error) {
	if cfg.PostgresDSN == "" {
		return alias.NewTable(cfg.Aliases)
	}
	loader, err := pgalias.Open(cfg.PostgresDSN, 3*time.Second)
	if err != nil {
		return nil, err
	}
	defer loader.Close()
	return loader.LoadTable(context.Background(), cfg.DataFile)
}

func loadColormaps(ctx context.Context, cfg *config.Config) (*colormap.Registry, error) {
	registry := colormap.NewRegistry()
	for _, path := range cfg.WasmColormapPaths {
		host, err := colormap.LoadPlugin(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("loading colormap plugin %s: %w", path, err)
		}
		name := pluginName(path)
		registry.RegisterPlugin(name, host)
		log.Printf("registered wasm colormap plugin %q from %s", name, path)
	}
	return registry, nil
}

func newRecorder(cfg *config.Config) *audit.AsyncRecorder {
	var opts []audit.Option
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		opts = append(opts, audit.WithKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	return audit.NewAsyncRecorder(opts...)
}

func newImageCache(cfg *config.Config) (*imagecache.Cache, error) {
	cache := imagecache.New(512)
	if cfg.RedisURL == "" {
		return cache, nil
	}
	client, err := imagecache.NewGoRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.RedisURL, err)
	}
	return cache.WithRedis(client, 10*time.Minute), nil
}

// serveFlight runs the Arrow Flight gRPC listener until the process exits;
// its failures are logged but never bring down the HTTP server, since Flight
// is an optional transport alongside /data.
func serveFlight(store *dataset.Store, table *alias.Table, cfg *config.Config) {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.FlightPort))
	if err != nil {
		log.Printf("flight: listen: %v", err)
		return
	}
	grpcServer := grpc.NewServer()
	srv := flightsvc.NewServer(store, table, cfg.MaxDataPoints, cfg.ArrowBatchRows)
	flight.RegisterFlightServiceServer(grpcServer, srv)
	log.Printf("arrow flight listening on %s", lis.Addr())
	if err := grpcServer.Serve(lis); err != nil {
		log.Printf("flight: serve: %v", err)
	}
}

func pluginName(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}
