package state

import (
	"encoding/json"
)

// Metrics are token/cost aggregates derived from the UI event log.
type Metrics struct {
	TokensIn    int     `json:"tokensIn"`
	TokensOut   int     `json:"tokensOut"`
	CacheWrites int     `json:"cacheWrites"`
	CacheReads  int     `json:"cacheReads"`
	TotalCost   float64 `json:"cost"`
}

// APIRequestInfo is the payload carried in the text of an api_req_started
// say event, recorded once per provider request.
type APIRequestInfo struct {
	TokensIn    int     `json:"tokensIn"`
	TokensOut   int     `json:"tokensOut"`
	CacheWrites int     `json:"cacheWrites"`
	CacheReads  int     `json:"cacheReads"`
	Cost        float64 `json:"cost"`
}

// Metrics recomputes aggregate token/cost metrics over the UI log, skipping
// the first entry (the task announcement). Events whose payload does not
// decode are skipped rather than failing the derivation.
func (h *Handler) Metrics() Metrics {
	var m Metrics
	if len(h.events) < 2 {
		return m
	}
	for _, ev := range h.events[1:] {
		if ev.Say != SayAPIReqStarted {
			continue
		}
		var info APIRequestInfo
		if err := json.Unmarshal([]byte(ev.Text), &info); err != nil {
			continue
		}
		m.TokensIn += info.TokensIn
		m.TokensOut += info.TokensOut
		m.CacheWrites += info.CacheWrites
		m.CacheReads += info.CacheReads
		m.TotalCost += info.Cost
	}
	return m
}
