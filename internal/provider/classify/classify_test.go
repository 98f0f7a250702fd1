package classify_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/provider/classify"
)

func TestFromStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   int
		body     string
		kind     classify.Kind
		specific bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", classify.Unauthorized, true},
		{"forbidden", http.StatusForbidden, `{"status":"NOT_AUTHORIZED"}`, classify.Unauthorized, true},
		{"too many requests", http.StatusTooManyRequests, "", classify.RateLimited, true},
		{"payment required", http.StatusPaymentRequired, "", classify.QuotaOrBilling, true},
		{"not found", http.StatusNotFound, "", classify.NotFound, true},
		{"server error", http.StatusBadGateway, "", classify.NetworkError, true},
		{"bad request", http.StatusBadRequest, "", classify.MalformedResponse, true},
		{"bad request with key phrase", http.StatusBadRequest, "Invalid API key provided", classify.Unauthorized, true},
		{"not found with billing phrase", http.StatusNotFound, "account inactive", classify.QuotaOrBilling, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Act
			err := classify.FromStatus(tc.status, tc.body)

			// Assert
			require.Equal(t, tc.kind, err.Kind)
			require.Equal(t, tc.specific, err.ProviderSpecific)
			require.Equal(t, tc.status, err.Status)
		})
	}
}

func TestFromMessage(t *testing.T) {
	t.Parallel()

	cases := map[string]classify.Kind{
		"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute. Please visit https://www.alphavantage.co/premium/": classify.RateLimited,
		"Thank you for using Alpha Vantage! This is a premium endpoint.":                       classify.QuotaOrBilling,
		"**apikey** parameter is incorrect or not specified.":                                  classify.Unauthorized,
		"You have run out of API credits for the current minute.":                              classify.RateLimited,
		"Your account is not active. Please check your billing details.":                       classify.QuotaOrBilling,
		"**symbol** not found: FOO/BAR. Please specify it correctly":                           classify.NotFound,
		"the parameter apikey is invalid or missing.":                                          classify.Unauthorized,
		"Bad Request.  The value for variable api_key is not registered.":                      classify.Unauthorized,
		"This symbol is available starting with Grow plan.":                                    classify.QuotaOrBilling,
		"something odd happened":                                                               classify.MalformedResponse,
		"Commodity quotes are not supported for this asset class by this provider":             classify.UnsupportedForAsset,
	}
	for msg, want := range cases {
		got := classify.FromMessage(msg)
		require.Equalf(t, want, got.Kind, "message %q", msg)
		require.Equal(t, want.ProviderSpecific(), got.ProviderSpecific)
	}
}

func TestUnsupportedForAssetIsNotProviderSpecific(t *testing.T) {
	t.Parallel()

	require.False(t, classify.UnsupportedForAsset.ProviderSpecific())
	require.False(t, classify.NoProviderConfigured.ProviderSpecific())
	for _, k := range []classify.Kind{classify.Unauthorized, classify.RateLimited, classify.QuotaOrBilling, classify.MalformedResponse, classify.NetworkError, classify.NotFound} {
		require.Truef(t, k.ProviderSpecific(), "%s should be provider-specific", k)
	}
}

func TestStrongest(t *testing.T) {
	t.Parallel()

	malformed := classify.New(classify.MalformedResponse, "bad json")
	notFound := classify.New(classify.NotFound, "no such symbol")
	auth := classify.New(classify.Unauthorized, "bad key")
	network := classify.New(classify.NetworkError, "reset")

	require.Same(t, auth, classify.Strongest(malformed, notFound, nil, auth, network))
	require.Same(t, notFound, classify.Strongest(malformed, notFound, network))
	require.Same(t, network, classify.Strongest(malformed, network))
	require.Nil(t, classify.Strongest(nil, nil))

	// Ties keep the first error.
	first := classify.New(classify.RateLimited, "first")
	second := classify.New(classify.RateLimited, "second")
	require.Same(t, first, classify.Strongest(first, second))
}

func TestAs(t *testing.T) {
	t.Parallel()

	// Arrange: a classified error wrapped by fmt.Errorf.
	inner := classify.New(classify.RateLimited, "slow down").WithCall("rsi")
	wrapped := fmt.Errorf("fetching rsi: %w", inner)

	// Assert: the classification survives wrapping.
	got := classify.As(wrapped)
	require.Equal(t, classify.RateLimited, got.Kind)
	require.Equal(t, "rsi: slow down", got.Error())

	// Assert: plain errors are transport failures.
	plain := classify.As(errors.New("connection refused"))
	require.Equal(t, classify.NetworkError, plain.Kind)
	require.True(t, plain.ProviderSpecific)

	timeout := classify.As(context.DeadlineExceeded)
	require.Equal(t, "request timed out", timeout.Message)
	require.ErrorIs(t, timeout, context.DeadlineExceeded)

	require.Nil(t, classify.As(nil))
}

func TestKindMarshalText(t *testing.T) {
	t.Parallel()

	b, err := classify.Unauthorized.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "Unauthorized", string(b))
	require.Equal(t, "Kind(99)", classify.Kind(99).String())
}

func TestKindUnmarshalText(t *testing.T) {
	t.Parallel()

	var k classify.Kind
	require.NoError(t, k.UnmarshalText([]byte("QuotaOrBilling")))
	require.Equal(t, classify.QuotaOrBilling, k)
	require.Error(t, k.UnmarshalText([]byte("Teapot")))
}
