package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"iq-card-service/internal/domain"
)

// BankLoader fetches a question bank from a backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, brand string) (domain.Bank, error)
}

// BankRepository caches question banks in Redis and falls back to a loader on miss.
// Banks are stored as JSON: SET bank:{brand} {json} EX ttl
type BankRepository struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewBankRepository(client *redis.Client, loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, brand string) (domain.Bank, error) {
	if bank, ok := r.cached(ctx, brand); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(brand, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := r.cached(ctx, brand); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, brand)
		if err != nil {
			return domain.Bank{}, err
		}

		data, err := json.Marshal(bank)
		if err == nil {
			if err := r.client.Set(ctx, r.key(brand), data, r.ttlWithJitter()).Err(); err != nil {
				log.Printf("cache bank %s: %v", brand, err)
			}
		}
		return bank, nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

func (r *BankRepository) cached(ctx context.Context, brand string) (domain.Bank, bool) {
	raw, err := r.client.Get(ctx, r.key(brand)).Bytes()
	if err != nil {
		return domain.Bank{}, false
	}
	var bank domain.Bank
	if err := json.Unmarshal(raw, &bank); err != nil || len(bank.Items) == 0 {
		return domain.Bank{}, false
	}
	return bank, true
}

// Invalidate drops the cached bank so the next read goes to the loader.
func (r *BankRepository) Invalidate(ctx context.Context, brand string) error {
	return r.client.Del(ctx, r.key(brand)).Err()
}

func (r *BankRepository) key(brand string) string {
	return "bank:" + brand
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
