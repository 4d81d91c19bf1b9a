// Package ranking scores retrieved books by similarity, popularity and batch diversity.
package ranking

// RankingConfig holds the composite score weights and popularity constants.
type RankingConfig struct {
	SimilarityWeight float64 `yaml:"similarity_weight"` // default: 0.5
	PopularityWeight float64 `yaml:"popularity_weight"` // default: 0.3
	DiversityWeight  float64 `yaml:"diversity_weight"`  // default: 0.2

	// Popularity = (VolumeWeight*min(ratings/RatingsSaturation, 1) + RatingWeight*rating/MaxRating) * PopularityScale
	VolumeWeight      float64 `yaml:"volume_weight"`      // default: 0.7
	RatingWeight      float64 `yaml:"rating_weight"`      // default: 0.3
	RatingsSaturation float64 `yaml:"ratings_saturation"` // default: 10000
	MaxRating         float64 `yaml:"max_rating"`         // default: 5
	PopularityScale   float64 `yaml:"popularity_scale"`   // default: 100

	// Diversity divides unique genres by N*GenresPerBook.
	GenresPerBook float64 `yaml:"genres_per_book"` // default: 3
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		SimilarityWeight:  0.5,
		PopularityWeight:  0.3,
		DiversityWeight:   0.2,
		VolumeWeight:      0.7,
		RatingWeight:      0.3,
		RatingsSaturation: 10000,
		MaxRating:         5,
		PopularityScale:   100,
		GenresPerBook:     3,
	}
}

// ApplyDefaults fills in unset values with defaults. The composite weights
// and the popularity mix weights are groups: a zero weight is kept as an
// explicit setting unless every weight in its group is zero.
func (c *RankingConfig) ApplyDefaults() {
	defaults := DefaultRankingConfig()

	if c.SimilarityWeight == 0 && c.PopularityWeight == 0 && c.DiversityWeight == 0 {
		c.SimilarityWeight = defaults.SimilarityWeight
		c.PopularityWeight = defaults.PopularityWeight
		c.DiversityWeight = defaults.DiversityWeight
	}
	if c.VolumeWeight == 0 && c.RatingWeight == 0 {
		c.VolumeWeight = defaults.VolumeWeight
		c.RatingWeight = defaults.RatingWeight
	}
	if c.RatingsSaturation <= 0 {
		c.RatingsSaturation = defaults.RatingsSaturation
	}
	if c.MaxRating <= 0 {
		c.MaxRating = defaults.MaxRating
	}
	if c.PopularityScale == 0 {
		c.PopularityScale = defaults.PopularityScale
	}
	if c.GenresPerBook <= 0 {
		c.GenresPerBook = defaults.GenresPerBook
	}
}
