package memory

import (
	"context"
	"errors"

	"iq-card-service/internal/domain"
)

// FallbackLoader asks primary first and falls back to secondary for brands the
// primary store does not know, so an unseeded database still serves the banks
// shipped with the configuration.
type FallbackLoader struct {
	primary   BankLoader
	secondary BankLoader
}

func NewFallbackLoader(primary, secondary BankLoader) *FallbackLoader {
	return &FallbackLoader{primary: primary, secondary: secondary}
}

func (l *FallbackLoader) LoadBank(ctx context.Context, brand string) (domain.Bank, error) {
	bank, err := l.primary.LoadBank(ctx, brand)
	if err == nil {
		return bank, nil
	}
	if !errors.Is(err, domain.ErrBankNotFound) || l.secondary == nil {
		return domain.Bank{}, err
	}
	return l.secondary.LoadBank(ctx, brand)
}
