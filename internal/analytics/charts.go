package analytics

import (
	"strings"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	chartLabelLimit  = 20
	chartLabelPrefix = "..."
)

// ChartKey selects how aggregated visits are grouped.
type ChartKey string

const (
	ChartKeyPageURL ChartKey = "page_url"
	ChartKeyMonth   ChartKey = "month"
	ChartKeyCountry ChartKey = "country"
)

// ChartKeys lists the dashboard charts in display order.
var ChartKeys = []ChartKey{ChartKeyPageURL, ChartKeyMonth, ChartKeyCountry}

// Chart is one bar chart dataset.
// FullLabels holds the untruncated labels shown in tooltips.
type Chart struct {
	Key        ChartKey `json:"key"`
	Title      string   `json:"title"`
	Labels     []string `json:"labels"`
	FullLabels []string `json:"fullLabels"`
	Values     []int64  `json:"values"`
}

// BuildChart groups aggregates by key. Page URLs are charted per row;
// months and countries are summed per distinct value in first-seen order.
func BuildChart(key ChartKey, aggregates []model.VisitAggregate) Chart {
	chart := Chart{Key: key, Labels: []string{}, FullLabels: []string{}, Values: []int64{}}
	switch key {
	case ChartKeyPageURL:
		chart.Title = "Page Visits"
		for _, aggregate := range aggregates {
			chart.Labels = append(chart.Labels, TruncateLabel(aggregate.PageURL))
			chart.FullLabels = append(chart.FullLabels, aggregate.PageURL)
			chart.Values = append(chart.Values, aggregate.Visits)
		}
	case ChartKeyMonth, ChartKeyCountry:
		chart.Title = strings.ToUpper(string(key[:1])) + string(key[1:]) + " Visits"
		positions := map[string]int{}
		for _, aggregate := range aggregates {
			label := aggregate.Month
			if key == ChartKeyCountry {
				label = aggregate.Country
			}
			position, seen := positions[label]
			if !seen {
				positions[label] = len(chart.Labels)
				chart.Labels = append(chart.Labels, label)
				chart.FullLabels = append(chart.FullLabels, label)
				chart.Values = append(chart.Values, aggregate.Visits)
				continue
			}
			chart.Values[position] += aggregate.Visits
		}
	}
	return chart
}

// TruncateLabel keeps the last 20 characters of labels longer than 20, prefixed by an ellipsis.
func TruncateLabel(label string) string {
	characters := []rune(label)
	if len(characters) <= chartLabelLimit {
		return label
	}
	return chartLabelPrefix + string(characters[len(characters)-chartLabelLimit:])
}
