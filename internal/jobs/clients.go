package jobs

import (
	"sync"

	"github.com/angelmondragon/mpsync/internal/analytics"
	"github.com/angelmondragon/mpsync/internal/campaigns"
	"github.com/angelmondragon/mpsync/internal/orders"
	"github.com/angelmondragon/mpsync/internal/reports"
	"github.com/angelmondragon/mpsync/internal/stocks"
	"github.com/angelmondragon/mpsync/internal/transactions"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

// SellerAPI is everything the seller-credential jobs call.
type SellerAPI interface {
	stocks.Source
	analytics.Source
	transactions.Source
	orders.Source
}

// PerformanceAPI is everything the advertising jobs call.
type PerformanceAPI interface {
	campaigns.Source
	reports.Source
}

// Clients builds API clients for a credential.
type Clients interface {
	Seller(key *models.APIKey) (SellerAPI, error)
	Performance(key *models.APIKey) (PerformanceAPI, error)
}

// MarketplaceClients builds HTTP clients. Performance clients are cached per
// credential so their access tokens survive between jobs.
type MarketplaceClients struct {
	cfg config.MarketplaceConfig

	mu          sync.Mutex
	performance map[int64]*marketplace.PerformanceClient
}

func NewMarketplaceClients(cfg config.MarketplaceConfig) *MarketplaceClients {
	return &MarketplaceClients{cfg: cfg, performance: map[int64]*marketplace.PerformanceClient{}}
}

func (c *MarketplaceClients) Seller(key *models.APIKey) (SellerAPI, error) {
	return marketplace.NewSellerClient(key.ClientID, key.ClientSecret,
		marketplace.WithBaseURL(c.cfg.SellerBaseURL),
		marketplace.WithTimeout(c.cfg.RequestTimeout),
		marketplace.WithDebug(c.cfg.Debug),
	)
}

func (c *MarketplaceClients) Performance(key *models.APIKey) (PerformanceAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.performance[key.ID]; ok {
		return client, nil
	}
	client, err := marketplace.NewPerformanceClient(key.ClientID, key.ClientSecret,
		marketplace.WithBaseURL(c.cfg.PerformanceBaseURL),
		marketplace.WithTimeout(c.cfg.RequestTimeout),
		marketplace.WithDebug(c.cfg.Debug),
	)
	if err != nil {
		return nil, err
	}
	c.performance[key.ID] = client
	return client, nil
}
