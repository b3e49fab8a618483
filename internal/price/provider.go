package price

import (
	"context"
	"fmt"

	"github.com/galois26/walletwatch/internal/config"
)

type Price struct {
	Currency string  // e.g., USD
	Value    float64 // price of 1 BTC in currency
}

// Provider fetches the current BTC price in a fiat currency.
type Provider interface {
	GetBTCPrice(ctx context.Context, currency string) (Price, error)
	Name() string
}

func NewProviderFromConfig(pc config.Price) (Provider, error) {
	switch pc.Provider.Type {
	case "coingecko":
		return NewCoinGecko(
			pc.Provider.BaseURL,
			pc.Provider.APIKey,
			pc.Provider.UserAgent,
			pc.Provider.Timeout.Std(),
		), nil
	case "":
		return nil, fmt.Errorf("price.provider.type is required")
	default:
		return nil, fmt.Errorf("unknown price provider: %s", pc.Provider.Type)
	}
}
