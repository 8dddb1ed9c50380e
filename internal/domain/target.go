package domain

import (
	"errors"
	"strings"
)

// Strategy selects how the target record is located in the hosted data service.
type Strategy string

const (
	StrategyByID     Strategy = "id"
	StrategyBySearch Strategy = "search"
)

// TargetSpec identifies the item holding the target record.
// ItemID is used by StrategyByID; Title, Owner and ItemType by StrategyBySearch.
type TargetSpec struct {
	Strategy Strategy
	ItemID   string
	Title    string
	Owner    string
	ItemType string
}

func (t TargetSpec) Validate() error {
	switch t.Strategy {
	case StrategyByID:
		if strings.TrimSpace(t.ItemID) == "" {
			return errors.New("target: item id must be non-empty")
		}
	case StrategyBySearch:
		if strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Owner) == "" {
			return errors.New("target: title and owner must be non-empty")
		}
		if strings.TrimSpace(t.ItemType) == "" {
			return errors.New("target: item type must be non-empty")
		}
	default:
		return errors.New("target: unknown strategy " + string(t.Strategy))
	}
	return nil
}
