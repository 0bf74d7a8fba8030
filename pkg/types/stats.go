package types

import "time"

// Stats is the per-user aggregate returned by the statistics endpoint.
type Stats struct {
	TotalCount     int `json:"totalCount"`
	ImmediateCount int `json:"immediateCount"`
	ShortTermCount int `json:"shortTermCount"`
	LongTermCount  int `json:"longTermCount"`

	AverageImportance float64 `json:"averageImportance"`

	CreatedToday     int `json:"createdToday"`
	CreatedThisWeek  int `json:"createdThisWeek"`
	CreatedThisMonth int `json:"createdThisMonth"`

	ExpiringSoon int `json:"expiringSoon"`
	Expired      int `json:"expired"`

	ImportanceHistogram ImportanceHistogram `json:"importanceDistribution"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// ImportanceHistogram buckets memories by importance:
// low < 0.4 <= medium < 0.7 <= high.
type ImportanceHistogram struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Bucket thresholds for ImportanceHistogram.
const (
	ImportanceMediumFloor = 0.4
	ImportanceHighFloor   = 0.7
)

// Add counts one importance value into the matching bucket.
func (h *ImportanceHistogram) Add(importance float64) {
	switch {
	case importance >= ImportanceHighFloor:
		h.High++
	case importance >= ImportanceMediumFloor:
		h.Medium++
	default:
		h.Low++
	}
}

// TrendRange selects the window of a creation trend series.
type TrendRange string

const (
	TrendWeek  TrendRange = "week"
	TrendMonth TrendRange = "month"
	TrendYear  TrendRange = "year"
)

// TrendPoint is the number of memories created in one period.
type TrendPoint struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Trend is a creation-count series over a TrendRange.
type Trend struct {
	Range  TrendRange   `json:"range"`
	Points []TrendPoint `json:"points"`
}

// Export is a downloadable snapshot of a user's statistics and memories.
type Export struct {
	ExportedAt time.Time `json:"exportedAt"`
	UserID     string    `json:"userId"`
	Stats      *Stats    `json:"stats"`
	Memories   []*Memory `json:"memories"`
}
