package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/chenpu17/cc-gw-sub001/internal/apikey"
	"github.com/chenpu17/cc-gw-sub001/internal/auditlog"
	"github.com/chenpu17/cc-gw-sub001/internal/connector"
	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
	"github.com/chenpu17/cc-gw-sub001/internal/handler"
	"github.com/chenpu17/cc-gw-sub001/internal/httpapi"
	"github.com/chenpu17/cc-gw-sub001/internal/modelcache"
	"github.com/chenpu17/cc-gw-sub001/internal/telemetry"
)

func main() {
	var (
		hostF      = flag.String("host", "localhost", "Server host")
		httpPortF  = flag.String("http-port", "8080", "HTTP port")
		configF    = flag.String("config", "", "Path to the gwconfig YAML snapshot (required)")
		dbgF       = flag.Bool("debug", false, "Enable debug-level logging")
		redisAddrF = flag.String("redis-addr", "", "Redis address for the api-key store (empty uses the in-process store)")
		mongoURIF  = flag.String("mongo-uri", "", "MongoDB URI for the audit log store (empty uses the in-process ring buffer)")
		mongoDBF   = flag.String("mongo-db", "cc_gw", "MongoDB database name for the audit log store")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if *configF == "" {
		log.Fatal(ctx, fmt.Errorf("-config is required"))
	}
	snap, err := gwconfig.FromFile(*configF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("loading config: %w", err))
	}
	store := gwconfig.NewStore(snap)
	log.Print(ctx, log.KV{K: "providers", V: len(snap.Providers)}, log.KV{K: "config", V: *configF})

	keyStore, keySalt := mustAPIKeyStore(ctx, *redisAddrF)
	auditStore := mustAuditStore(ctx, *mongoURIF, *mongoDBF)

	registry := connector.NewRegistry()
	registry.Sync(snap.Providers)

	h := handler.New(handler.Deps{
		Config:     store,
		Connectors: registry,
		APIKeys:    keyStore,
		APIKeySalt: keySalt,
		AuditStore: auditStore,
		ModelCache: modelcache.New(5 * time.Minute),
		Logger:     telemetry.NewClueLogger(),
		Metrics:    telemetry.NewClueMetrics(),
		Tracer:     telemetry.NewClueTracer(),
	})
	mux := httpapi.New(h, store, telemetry.NewClueLogger())

	addr := net.JoinHostPort(*hostF, *httpPortF)
	srv := &http.Server{Addr: addr, Handler: mux.Handler()}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		log.Printf(ctx, "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "graceful shutdown failed"})
	}
	log.Printf(ctx, "exited")
}

// mustAPIKeyStore builds a Redis-backed apikey.Store when redisAddr is
// set, else the in-process default. The salt is a process-wide pepper;
// production deployments should set CC_GW_APIKEY_SALT instead of
// relying on the fallback.
func mustAPIKeyStore(ctx context.Context, redisAddr string) (apikey.Store, string) {
	salt := os.Getenv("CC_GW_APIKEY_SALT")
	if salt == "" {
		salt = "cc-gw-dev-salt"
		log.Print(ctx, log.KV{K: "warning", V: "CC_GW_APIKEY_SALT not set, using an insecure development default"})
	}
	if redisAddr == "" {
		return apikey.NewMemoryStore(), salt
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	log.Print(ctx, log.KV{K: "apikey-store", V: "redis"}, log.KV{K: "addr", V: redisAddr})
	return apikey.NewRedisStore(client, "cc-gw"), salt
}

// mustAuditStore builds a Mongo-backed auditlog.Store when mongoURI is
// set, else an in-process ring buffer capped at 10000 records.
func mustAuditStore(ctx context.Context, mongoURI, mongoDB string) auditlog.Store {
	if mongoURI == "" {
		return auditlog.NewMemoryStore(10000)
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("connecting to mongo: %w", err))
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		log.Fatal(ctx, fmt.Errorf("pinging mongo: %w", err))
	}
	mongoStore, err := auditlog.NewMongoStore(client, mongoDB, "", 5*time.Second)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("building mongo audit store: %w", err))
	}
	log.Print(ctx, log.KV{K: "audit-store", V: "mongo"}, log.KV{K: "db", V: mongoDB})
	return mongoStore
}
