package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"iq-card-service/internal/domain"
)

// BankLoader fetches a brand's question bank from a backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, brand string) (domain.Bank, error)
}

// BankRepository caches banks with TTL to avoid repeated store hits.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      domain.Bank
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, brand string) (domain.Bank, error) {
	if bank, ok := r.cached(brand, r.clock()); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(brand, func() (interface{}, error) {
		now := r.clock()
		if bank, ok := r.cached(brand, now); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, brand)
		if err != nil {
			return domain.Bank{}, err
		}

		r.mu.Lock()
		r.cache[brand] = cachedBank{
			bank:      bank,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

func (r *BankRepository) cached(brand string, now time.Time) (domain.Bank, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[brand]; ok && entry.expiresAt.After(now) {
		return entry.bank, true
	}
	return domain.Bank{}, false
}

// StaticBankLoader serves banks from configuration (YAML) held in memory.
type StaticBankLoader struct {
	banks map[string]domain.Bank
}

func NewStaticBankLoader(banks map[string]domain.Bank) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, brand string) (domain.Bank, error) {
	if bank, ok := l.banks[brand]; ok {
		return bank, nil
	}
	return domain.Bank{}, domain.ErrBankNotFound
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
