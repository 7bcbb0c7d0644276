package memory

import (
	"context"
	"errors"
	"testing"

	"iq-card-service/internal/domain"
)

type failingLoader struct{ err error }

func (l failingLoader) LoadBank(context.Context, string) (domain.Bank, error) {
	return domain.Bank{}, l.err
}

func TestFallbackLoaderUsesSecondaryForMissingBanks(t *testing.T) {
	static := NewStaticBankLoader(map[string]domain.Bank{"brevis": sampleBank()})
	loader := NewFallbackLoader(failingLoader{err: domain.ErrBankNotFound}, static)

	bank, err := loader.LoadBank(context.Background(), "brevis")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bank.Items) == 0 {
		t.Fatalf("expected bank from secondary")
	}
}

func TestFallbackLoaderKeepsOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	static := NewStaticBankLoader(map[string]domain.Bank{"brevis": sampleBank()})
	loader := NewFallbackLoader(failingLoader{err: boom}, static)

	if _, err := loader.LoadBank(context.Background(), "brevis"); !errors.Is(err, boom) {
		t.Fatalf("expected primary error, got %v", err)
	}
}
