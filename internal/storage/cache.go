// Package storage keeps the console's in-memory copy of campaign history.
package storage

import (
	"sync"
	"time"

	"campaign-console/internal/crmapi"
)

// Cache holds the last history list fetched from the CRM API.
type Cache struct {
	mu        sync.RWMutex
	campaigns []crmapi.Campaign
	updatedAt time.Time
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) GetCampaigns() []crmapi.Campaign {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]crmapi.Campaign(nil), c.campaigns...)
}

// Find returns the cached campaign with the given id.
func (c *Cache) Find(id string) (crmapi.Campaign, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cmp := range c.campaigns {
		if cmp.ID == id {
			return cmp, true
		}
	}
	return crmapi.Campaign{}, false
}

func (c *Cache) UpdateCampaigns(campaigns []crmapi.Campaign) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.campaigns = campaigns
	c.updatedAt = time.Now()
}

// UpdatedAt is the zero time until the first update.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
