package models

// SearchResult is a similarity hit hydrated with its catalog record.
type SearchResult struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Record     *Record `json:"record"`
}

// RecommendationResult is a ranked, explained recommendation.
type RecommendationResult struct {
	SearchResult
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// RecommendationResponse is the response for a recommendation request.
type RecommendationResponse struct {
	Query     string                  `json:"query"`
	Results   []*RecommendationResult `json:"results"`
	Total     int                     `json:"total"`
	QueryTime int64                   `json:"query_time_ms"`
}

// CountEntry is a name with its occurrence count, used for catalog statistics.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TitleMatch is a full-text title lookup hit.
type TitleMatch struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Record *Record `json:"record"`
}

// TitleSearchResponse is the response for a title lookup. CorrectedQuery is
// set when the query was spelling-corrected before the results were found.
type TitleSearchResponse struct {
	Query          string        `json:"query"`
	CorrectedQuery string        `json:"corrected_query,omitempty"`
	Results        []*TitleMatch `json:"results"`
	Total          int           `json:"total"`
}
