package ads

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/policy/retry"
)

func newTestAdsClient(endpoint string) *Client {
	return NewClient(
		Config{Endpoint: endpoint, Token: "token", AdType: "POLITICAL_AND_ISSUE_ADS", Limit: 500},
		retry.New(retry.WithBaseDelay(time.Millisecond)),
		zap.NewNop(),
	)
}

func TestFetchSummaryCountsActiveAndRecentAds(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"data":[
			{"ad_creation_time":"2024-06-10T08:00:00+0000"},
			{"ad_creation_time":"2024-06-09T23:00:00+0000"},
			{"ad_creation_time":"2024-06-01T00:00:00+0000"},
			{"ad_creation_time":"garbage"}
		]}`)
	}))
	defer srv.Close()

	client := newTestAdsClient(srv.URL)
	summary, err := client.FetchSummary(context.Background(), "page-123", today)
	require.NoError(t, err)
	require.Equal(t, 4, summary.ActiveAds)
	require.Equal(t, 2, summary.NewAdsLast24h)

	require.Equal(t, []string{"page-123"}, gotQuery["search_page_ids"])
	require.Equal(t, []string{"POLITICAL_AND_ISSUE_ADS"}, gotQuery["ad_type"])
	require.Equal(t, []string{"500"}, gotQuery["limit"])
	require.Equal(t, []string{"ad_creation_time"}, gotQuery["fields"])
}

func TestFetchSummaryEmptyAccountIDIsAnError(t *testing.T) {
	t.Parallel()

	client := newTestAdsClient("http://unused.example")
	_, err := client.FetchSummary(context.Background(), "", time.Now())
	require.Error(t, err)
}

func TestFetchSummaryErrorStatusPropagates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestAdsClient(srv.URL)
	_, err := client.FetchSummary(context.Background(), "page-123", time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestCreatedWithinDay(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	require.True(t, createdWithinDay("2024-06-10T01:00:00+0000", today))
	require.True(t, createdWithinDay("2024-06-09T01:00:00+0000", today))
	require.False(t, createdWithinDay("2024-06-08T23:59:00+0000", today))
	require.False(t, createdWithinDay("", today))
	require.False(t, createdWithinDay("yesterday", today))
}
