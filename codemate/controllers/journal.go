package controllers

import (
	"codemate/codemate/sources/psql/models"
	"context"
	"fmt"
)

const (
	defaultJournalLimit = 20
	maxJournalLimit     = 200
)

// ExchangeLister reads back journal entries.
type ExchangeLister interface {
	Recent(ctx context.Context, limit int) ([]models.Exchange, error)
}

type JournalController struct {
	lister ExchangeLister
}

func NewJournalController(lister ExchangeLister) *JournalController {
	return &JournalController{lister: lister}
}

// Recent returns at most limit exchanges, newest first. A non-positive limit
// means the default; larger values are capped.
func (c *JournalController) Recent(ctx context.Context, limit int) ([]models.Exchange, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	out, err := c.lister.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	if out == nil {
		out = []models.Exchange{}
	}
	return out, nil
}
