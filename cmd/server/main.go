package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log"
	"net/http"
	"strconv"
	"time"

	"burnbox.dev/config"
	"burnbox.dev/internal/api"
	"burnbox.dev/internal/crypto"
	"burnbox.dev/internal/ratelimit"
	"burnbox.dev/internal/secrets"
	"burnbox.dev/internal/settings"
	"burnbox.dev/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config error:", err)
	}

	st, options, counters := initBackends(cfg)
	defer st.Close()
	defer options.Close()
	defer counters.Close()

	ctx := context.Background()

	if err := seedOptions(ctx, options, cfg); err != nil {
		log.Fatal("seeding options failed:", err)
	}

	manager, err := crypto.NewManager(ctx, options, cfg.Encryption.Key)
	if err != nil {
		log.Fatal("encryption init failed:", err)
	}
	if !manager.Available() {
		log.Print("WARNING: no encryption key available; secrets will be stored unencrypted")
	}

	limiter := ratelimit.New(counters, options, saltBytes(cfg), cfg.RateLimit.Window)

	svc := secrets.NewService(st, manager, limiter, options, cfg.Secrets.SweepGrace)

	go sweepLoop(ctx, svc, cfg.Secrets.SweepInterval)

	router := api.SetupRouter(svc, cfg, limiter.Trigger())

	log.Printf("Server starting on %s", cfg.Addr())
	log.Printf("Base URL: %s", cfg.Server.BaseURL)
	log.Printf("Store: %s", cfg.Store.Type)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func initBackends(cfg *config.Config) (store.Store, settings.Store, ratelimit.CounterStore) {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Secrets.SweepGrace)
		if err != nil {
			log.Fatal("redis connection failed:", err)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		return st, settings.NewRedisStore(client), ratelimit.NewRedisCounters(client)
	default:
		return store.NewMemoryStore(), settings.NewMemoryStore(), ratelimit.NewMemoryCounters()
	}
}

// seedOptions writes config defaults into the runtime options store
// without clobbering values an operator changed at runtime.
func seedOptions(ctx context.Context, options settings.Store, cfg *config.Config) error {
	seeds := []struct {
		key   string
		value string
	}{
		{settings.KeyRateLimitEnabled, strconv.FormatBool(cfg.RateLimit.Enabled)},
		{settings.KeyRateLimitTries(string(ratelimit.ActionSubmit)), strconv.Itoa(cfg.RateLimit.SubmitPerWindow)},
		{settings.KeyRateLimitTries(string(ratelimit.ActionConfirm)), strconv.Itoa(cfg.RateLimit.ConfirmPerWindow)},
		{settings.KeyRateLimitTries(string(ratelimit.ActionView)), strconv.Itoa(cfg.RateLimit.ViewPerWindow)},
	}
	for _, seed := range seeds {
		if _, err := options.SetNX(ctx, seed.key, seed.value); err != nil {
			return err
		}
	}
	return nil
}

func saltBytes(cfg *config.Config) []byte {
	if cfg.RateLimit.Salt != "" {
		return []byte(cfg.RateLimit.Salt)
	}
	// Ephemeral salt: fingerprints reset on restart, which only shortens
	// rate windows, never widens them.
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		log.Fatal("salt generation failed:", err)
	}
	return salt
}

func sweepLoop(ctx context.Context, svc *secrets.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.Sweep(ctx)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("sweep removed %d expired secrets", removed)
			}
		}
	}
}
