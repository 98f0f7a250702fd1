package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/provider"
)

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest(provider.MarketData, "btcusd", "")
	require.NoError(t, err)
	require.Equal(t, "BTCUSD", req.AssetID)
	require.Equal(t, "1d", req.TimeframeID)
	require.Equal(t, provider.Crypto, req.AssetClass)

	req, err = buildRequest(provider.InterestRate, "FEDFUNDS", "1h")
	require.NoError(t, err)
	require.Empty(t, req.TimeframeID)

	_, err = buildRequest(provider.InterestRate, "EURUSD", "")
	require.Error(t, err)

	_, err = buildRequest(provider.MarketData, "EURUSD", "2d")
	require.ErrorContains(t, err, "unknown timeframe")
}
