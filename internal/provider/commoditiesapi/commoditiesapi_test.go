package commoditiesapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketfeed/internal/httpx/httpxmock"
	"marketfeed/internal/provider/classify"
	"marketfeed/internal/provider/commoditiesapi"
)

func TestFetch_Gold(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			if q.Get("access_key") != "key" || q.Get("base") != "USD" || q.Get("symbols") != "XAU" {
				return httpxmock.Respond(http.StatusOK, `{"data":{"success":false,"error":{"code":201,"type":"invalid_base","info":"bad"}}}`), nil
			}
			return httpxmock.Respond(http.StatusOK, `{"data":{"success":true,"timestamp":1710504000,"date":"2024-03-15","base":"USD","rates":{"USD":1,"XAU":0.00046},"unit":"per ounce"}}`), nil
		}).
		Times(1)

	a := commoditiesapi.New(commoditiesapi.WithBaseURL("https://commodities.test"), commoditiesapi.WithHTTPClient(doer))

	// Act
	out := a.Fetch(t.Context(), "XAU/USD", "", "key")

	// Assert
	require.Nil(t, out.Err)
	require.Equal(t, 2173.91, *out.Fields.Price)
	require.NotNil(t, out.Fields.LastTradeTimestamp)
}

func TestFetch_UnwrappedPayload(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		Return(httpxmock.Respond(http.StatusOK, `{"success":true,"rates":{"XAG":"0.04"}}`), nil).
		Times(1)
	a := commoditiesapi.New(commoditiesapi.WithHTTPClient(doer))

	out := a.Fetch(t.Context(), "XAG/USD", "", "key")

	require.Nil(t, out.Err)
	require.Equal(t, 25.0, *out.Fields.Price)
}

func TestFetch_ErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		kind classify.Kind
		code int
	}{
		{"invalid key", `{"data":{"success":false,"error":{"code":101,"type":"invalid_access_key","info":"You have not supplied a valid API Access Key."}}}`, classify.Unauthorized, 101},
		{"monthly limit", `{"data":{"success":false,"error":{"code":104,"type":"usage_limit_reached","info":"Your monthly API request volume has been reached."}}}`, classify.RateLimited, 104},
		{"inactive", `{"data":{"success":false,"error":{"code":102,"type":"account_inactive","info":"Your account is not active."}}}`, classify.QuotaOrBilling, 102},
		{"unknown code", `{"data":{"success":false,"error":{"code":999,"type":"weird","info":"something odd"}}}`, classify.MalformedResponse, 999},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			ctrl := gomock.NewController(t)
			doer := httpxmock.NewMockDoer(ctrl)
			doer.EXPECT().Do(gomock.Any()).Return(httpxmock.Respond(http.StatusOK, tc.body), nil).Times(1)
			a := commoditiesapi.New(commoditiesapi.WithHTTPClient(doer))

			// Act
			out := a.Fetch(t.Context(), "XAU/USD", "", "key")

			// Assert
			require.False(t, out.Success())
			require.Equal(t, tc.kind, out.Err.Kind)
			require.True(t, out.Err.ProviderSpecific)
			require.Equal(t, tc.code, out.Err.Code)
			require.Zero(t, out.Err.Status)
		})
	}
}
