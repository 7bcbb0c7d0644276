package app

import (
	"math/rand"

	"iq-card-service/internal/domain"
)

// Sample returns min(n, len(bank)) distinct items in random order. It shuffles a
// copy (Fisher-Yates from the end) so every permutation is equally likely and the
// bank itself is never reordered.
func Sample(bank []domain.QuizItem, n int, rnd *rand.Rand) []domain.QuizItem {
	if n <= 0 || len(bank) == 0 {
		return []domain.QuizItem{}
	}
	shuffled := make([]domain.QuizItem, len(bank))
	copy(shuffled, bank)

	intn := rand.Intn
	if rnd != nil {
		intn = rnd.Intn
	}
	for i := len(shuffled) - 1; i > 0; i-- {
		j := intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
