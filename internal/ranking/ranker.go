package ranking

import (
	"sort"

	"github.com/hyperjump/shelf/internal/models"
)

// Ranker turns similarity hits into scored recommendations.
type Ranker struct {
	config *RankingConfig
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &Ranker{config: config}
}

// Config returns the ranker's configuration.
func (r *Ranker) Config() *RankingConfig { return r.config }

// Rank scores every hit, sorts by descending composite score keeping input
// order for ties, and keeps at most k (k <= 0 keeps all). Diversity is
// computed once over the whole input batch.
func (r *Ranker) Rank(hits []*models.SearchResult, k int) []*models.RecommendationResult {
	if len(hits) == 0 {
		return nil
	}
	records := make([]*models.Record, len(hits))
	for i, h := range hits {
		records[i] = h.Record
	}
	diversity := r.config.Diversity(records)

	out := make([]*models.RecommendationResult, len(hits))
	for i, h := range hits {
		out[i] = &models.RecommendationResult{
			SearchResult: *h,
			Score:        r.config.Composite(h.Similarity, r.config.Popularity(h.Record), diversity),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
