package memory

import (
	"context"
	"sync"

	"waste-auction/internal/domain"
)

type creditKey struct {
	listingID string
	role      domain.PointsRole
}

type PointsLedger struct {
	mu       sync.Mutex
	credits  map[creditKey]domain.PointsCredit
	balances map[string]int64
}

func NewPointsLedger() *PointsLedger {
	return &PointsLedger{
		credits:  make(map[creditKey]domain.PointsCredit),
		balances: make(map[string]int64),
	}
}

func (p *PointsLedger) Credit(ctx context.Context, credit *domain.PointsCredit) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := creditKey{listingID: credit.ListingID, role: credit.Role}
	if _, exists := p.credits[key]; exists {
		return false, nil
	}

	p.credits[key] = *credit
	p.balances[credit.UserID] += credit.Amount
	return true, nil
}

func (p *PointsLedger) Balance(ctx context.Context, userID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.balances[userID], nil
}
