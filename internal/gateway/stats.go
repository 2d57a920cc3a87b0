package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	aggregatedStatsPath = "stats/aggregated"
	recentStatsPath     = "stats/recent"

	// RecentVisitsPageSize is the number of recent visits requested per page.
	RecentVisitsPageSize = 20

	queryParameterLimit = "limit"

	operationAggregatedStats = "aggregated_stats"
	operationRecentStats     = "recent_stats"
)

// AggregatedVisits returns visit totals grouped by page, month and country.
func (client *Client) AggregatedVisits(ctx context.Context) ([]model.VisitAggregate, error) {
	var aggregates []model.VisitAggregate
	if statsErr := client.executeJSON(ctx, requestSpec{
		operation: operationAggregatedStats,
		method:    http.MethodGet,
		path:      aggregatedStatsPath,
	}, nil, &aggregates); statsErr != nil {
		return nil, statsErr
	}
	if aggregates == nil {
		aggregates = []model.VisitAggregate{}
	}
	return aggregates, nil
}

// RecentVisits returns one page of the recent visit log.
func (client *Client) RecentVisits(ctx context.Context, page int) ([]model.RecentVisit, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set(queryParameterPage, strconv.Itoa(page))
	query.Set(queryParameterLimit, strconv.Itoa(RecentVisitsPageSize))

	var visits []model.RecentVisit
	if statsErr := client.executeJSON(ctx, requestSpec{
		operation: operationRecentStats,
		method:    http.MethodGet,
		path:      recentStatsPath,
		query:     query,
	}, nil, &visits); statsErr != nil {
		return nil, statsErr
	}
	if visits == nil {
		visits = []model.RecentVisit{}
	}
	return visits, nil
}
