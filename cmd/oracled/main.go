// Command oracled runs the exchange rate engine as a standalone HTTP
// process: it loads configuration, wires the registry/driver/forex/
// coordinator stack, starts the periodic scheduler, and serves ingress
// requests. Structured the way the teacher's cmd/server/main.go boots its
// own dependency graph before opening a listener.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/redis/go-redis/v9"

	"exchangerateoracle/internal/api"
	"exchangerateoracle/internal/config"
	"exchangerateoracle/internal/oracle/coordinator"
	"exchangerateoracle/internal/oracle/forex"
	"exchangerateoracle/internal/oracle/outcall"
	"exchangerateoracle/internal/oracle/periodic"
	"exchangerateoracle/internal/oracle/registry"
)

func main() {
	config.LoadEnv()

	if err := config.Validate(); err != nil {
		log.Fatalf("CRITICAL: invalid configuration: %v", err)
	}

	redisClient := newRedisClient()
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := registry.New()
	driver := outcall.New(config.OutcallTimeout)
	forexStore := forex.New(redisClient)
	forexStore.WarmFromRedis(context.Background(), warmDayStart())

	tracer := opentracing.NoopTracer{}
	coord := coordinator.New(reg, driver, forexStore, tracer)

	scheduler := periodic.New(reg, driver, forexStore, coord)
	if err := scheduler.Start(context.Background()); err != nil {
		log.Fatalf("CRITICAL: failed to start periodic scheduler: %v", err)
	}
	defer scheduler.Stop()

	server := api.NewServer(coord)
	httpServer := &http.Server{
		Addr:         config.HTTPListenAddress,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("oracled: listening on %s", config.HTTPListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("CRITICAL: HTTP server failed: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

// newRedisClient builds the optional write-through client from
// ORACLE_REDIS_ADDR. A nil client degrades the forex store to in-memory
// only, exactly as forex.Store documents.
func newRedisClient() *redis.Client {
	addr := config.RedisAddr()
	if addr == "" {
		log.Println("oracled: ORACLE_REDIS_ADDR not set, forex store running in-memory only")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("oracled: redis unreachable at %s, forex store running in-memory only: %v", addr, err)
		return nil
	}
	log.Printf("oracled: connected to redis at %s", addr)
	return client
}

func warmDayStart() uint64 {
	t := time.Now().UTC()
	return uint64(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix())
}

func waitForShutdown(httpServer *http.Server) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("oracled: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("oracled: graceful shutdown failed: %v", err)
	}
}
