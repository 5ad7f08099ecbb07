package provider

import (
	"fmt"
	"sort"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
)

// Catalog is the immutable, tier-ordered provider hierarchy
type Catalog struct {
	configs   []Config
	byID      map[string]int
	premiumID string
	economyID string
}

// NewCatalog validates and orders provider configs. Empty premium/economy ids default to
// the second most capable and the least capable provider.
func NewCatalog(configs []Config, premiumID, economyID string) (*Catalog, error) {
	if len(configs) == 0 {
		return nil, apperrors.NewConfigurationError("provider catalog is empty", nil)
	}

	ordered := make([]Config, len(configs))
	copy(ordered, configs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Tier < ordered[j].Tier })

	byID := make(map[string]int, len(ordered))
	for i, cfg := range ordered {
		if cfg.ID == "" {
			return nil, apperrors.NewConfigurationError("provider id must not be empty", nil)
		}
		if _, dup := byID[cfg.ID]; dup {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("duplicate provider id %q", cfg.ID), nil)
		}
		if i > 0 && ordered[i-1].Tier == cfg.Tier {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("providers %q and %q share tier %d", ordered[i-1].ID, cfg.ID, cfg.Tier), nil)
		}
		if cfg.Tier < TierTop {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("provider %q has negative tier", cfg.ID), nil)
		}
		if cfg.CostPer1KTokens.IsNegative() {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("provider %q has negative cost", cfg.ID), nil)
		}
		byID[cfg.ID] = i
	}

	if premiumID == "" {
		premiumID = ordered[0].ID
		if len(ordered) > 1 {
			premiumID = ordered[1].ID
		}
	}
	if economyID == "" {
		economyID = ordered[len(ordered)-1].ID
	}
	for _, id := range []string{premiumID, economyID} {
		if _, ok := byID[id]; !ok {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("unknown provider id %q", id), nil)
		}
	}

	return &Catalog{configs: ordered, byID: byID, premiumID: premiumID, economyID: economyID}, nil
}

// All returns the providers ordered from most to least capable
func (c *Catalog) All() []Config {
	out := make([]Config, len(c.configs))
	copy(out, c.configs)
	return out
}

// ByID looks up a provider
func (c *Catalog) ByID(id string) (Config, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Config{}, false
	}
	return c.configs[i], true
}

// Top is the most capable provider
func (c *Catalog) Top() Config { return c.configs[0] }

// Premium is the provider used for demanding requests
func (c *Catalog) Premium() Config { return c.configs[c.byID[c.premiumID]] }

// Economy is the provider used for routine requests
func (c *Catalog) Economy() Config { return c.configs[c.byID[c.economyID]] }

// Cheapest returns the lowest-cost provider, preferring the more capable on ties
func (c *Catalog) Cheapest() Config {
	best := c.configs[0]
	for _, cfg := range c.configs[1:] {
		if cfg.CostPer1KTokens.LessThan(best.CostPer1KTokens) {
			best = cfg
		}
	}
	return best
}

// NextHigher returns the next more capable provider. ok is false at the top tier.
func (c *Catalog) NextHigher(tier Tier) (Config, bool) {
	for i := len(c.configs) - 1; i >= 0; i-- {
		if c.configs[i].Tier < tier {
			return c.configs[i], true
		}
	}
	return Config{}, false
}

// NextLower returns the next less capable provider. ok is false at the bottom tier.
func (c *Catalog) NextLower(tier Tier) (Config, bool) {
	for _, cfg := range c.configs {
		if cfg.Tier > tier {
			return cfg, true
		}
	}
	return Config{}, false
}
