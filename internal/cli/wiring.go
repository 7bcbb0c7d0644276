package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"iq-card-service/internal/app"
	"iq-card-service/internal/avatar"
	"iq-card-service/internal/card"
	"iq-card-service/internal/config"
	"iq-card-service/internal/infra/memory"
	pgloader "iq-card-service/internal/infra/postgres"
	infraredis "iq-card-service/internal/infra/redis"
	"iq-card-service/internal/infra/sqlite"
)

// runtime bundles the wired service with the resources it holds open.
type runtime struct {
	service *app.QuizService
	closers []func()
}

func (r *runtime) Close() {
	if r.service != nil {
		r.service.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildCatalog(cfg config.Config) *app.Catalog {
	entries := make([]app.BrandEntry, 0, len(cfg.Brands))
	for _, b := range cfg.Brands {
		entries = append(entries, app.BrandEntry{
			Brand:    b.Domain(),
			Resolver: avatar.NewResolver(cfg.AvatarConfig(b)),
		})
	}
	return app.NewCatalog(entries...)
}

func exportOptions(cfg config.Config) card.Options {
	defaults := card.DefaultOptions()
	opts := card.Options{
		Scale:          cfg.Export.Scale,
		Settle:         config.TTLDuration(cfg.Export.Settle, defaults.Settle),
		SettleFallback: config.TTLDuration(cfg.Export.SettleFallback, defaults.SettleFallback),
	}
	if opts.Scale <= 0 {
		opts.Scale = defaults.Scale
	}
	return opts
}

// buildRuntime wires banks, caches and sessions from the config. Redis,
// Postgres and SQLite are each optional; without them everything runs in process.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var loader memory.BankLoader = memory.NewStaticBankLoader(cfg.Banks())
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		loader = memory.NewFallbackLoader(pgloader.NewBankLoader(pool), loader)
	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { store.Close() })
		loader = memory.NewFallbackLoader(store, loader)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	avatarTTL := config.TTLDuration(cfg.Avatar.CacheTTL, time.Hour)

	var banks app.BankRepository
	var store app.SessionRepository
	var avatarCache avatar.Cache
	if redisClient != nil {
		banks = infraredis.NewBankRepository(redisClient, loader, quizTTL)
		store = infraredis.NewSessionStore(redisClient, redisTTL)
		avatarCache = infraredis.NewAvatarCache(redisClient, avatarTTL)
	} else {
		banks = memory.NewBankRepository(loader, quizTTL)
		store = memory.NewSessionStore()
		avatarCache = memory.NewAvatarCache(avatarTTL)
	}

	client := avatar.NewHTTPClient(config.TTLDuration(cfg.Avatar.Timeout, 5*time.Second))
	inliner := avatar.NewFetcher(client, avatarCache)
	exporter := card.NewExporter(card.NewPNGRenderer(), inliner, exportOptions(cfg))

	rt.service = app.NewQuizService(store, banks, buildCatalog(cfg), app.Options{
		QuestionCount: cfg.Quiz.Questions,
		TickEvery:     config.TTLDuration(cfg.Quiz.Tick, time.Second),
		IdleTTL:       config.TTLDuration(cfg.Quiz.IdleTTL, 30*time.Minute),
		Exporter:      exporter,
		Inliner:       inliner,
	})
	return rt, nil
}
