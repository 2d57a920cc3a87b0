package model

import (
	"strings"
)

const (
	VisitReferrerDirect = "Direct"
	VisitCountryUnknown = "Unknown"
)

// VisitAggregate is one row of the backend's aggregated visit statistics.
type VisitAggregate struct {
	PageURL string `json:"page_url"`
	Month   string `json:"month"`
	Country string `json:"country"`
	Visits  int64  `json:"visits"`
}

// RecentVisit is one row of the backend's paginated recent visit log.
type RecentVisit struct {
	PageURL   string `json:"page_url"`
	Referrer  string `json:"referrer"`
	Country   string `json:"country"`
	IPAddress string `json:"ip_address"`
	VisitTime string `json:"visit_time"`
	Visits    int64  `json:"visits"`
}

// DisplayReferrer returns the referrer or Direct when the visit had none.
func (visit RecentVisit) DisplayReferrer() string {
	if strings.TrimSpace(visit.Referrer) == "" {
		return VisitReferrerDirect
	}
	return visit.Referrer
}

// DisplayCountry returns the country or Unknown when it is missing.
func (visit RecentVisit) DisplayCountry() string {
	if strings.TrimSpace(visit.Country) == "" {
		return VisitCountryUnknown
	}
	return visit.Country
}

// UnreadCounts carries the badge counters pushed for the career and connect inboxes.
type UnreadCounts struct {
	CareerUnread  int `json:"careerUnread"`
	ConnectUnread int `json:"connectUnread"`
}
