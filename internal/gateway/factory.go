package gateway

import (
	"fmt"

	"autotrader/pkg/exchanges/binance"
	"autotrader/pkg/exchanges/bybit"
	"autotrader/pkg/exchanges/common"
)

// Credentials carries everything needed to construct an adapter.
type Credentials struct {
	Exchange  common.ExchangeType
	APIKey    string
	APISecret string
	Testnet   bool
}

// newAdapter constructs an exchange adapter for the given credentials.
func newAdapter(creds Credentials) (common.Adapter, error) {
	switch creds.Exchange {
	case common.ExchangeBinance:
		return binance.New(binance.Config{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			Testnet:   creds.Testnet,
		}), nil
	case common.ExchangeBybit:
		return bybit.New(bybit.Config{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			Testnet:   creds.Testnet,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported exchange type %q", creds.Exchange)
	}
}
