package ranking

import (
	"math"
	"strings"

	"github.com/hyperjump/shelf/internal/models"
)

// Popularity blends rating volume and average rating, scaled to 0 to PopularityScale.
func (c *RankingConfig) Popularity(r *models.Record) float64 {
	volume := math.Min(float64(r.RatingsCount())/c.RatingsSaturation, 1)
	if volume < 0 {
		volume = 0
	}
	rating := r.AverageRating() / c.MaxRating
	return (c.VolumeWeight*volume + c.RatingWeight*rating) * c.PopularityScale
}

// Diversity scores a whole batch: the mean of unique genres over N*GenresPerBook
// and unique authors over N. Genres and authors compare case-insensitively.
// An empty batch scores 0.
func (c *RankingConfig) Diversity(records []*models.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	genres := make(map[string]struct{})
	authors := make(map[string]struct{})
	for _, r := range records {
		for _, g := range r.Genres() {
			genres[strings.ToLower(g)] = struct{}{}
		}
		if a := r.Author(); a != "" {
			authors[strings.ToLower(a)] = struct{}{}
		}
	}
	n := float64(len(records))
	genreDiversity := float64(len(genres)) / (n * c.GenresPerBook)
	authorDiversity := float64(len(authors)) / n
	return (genreDiversity + authorDiversity) / 2
}

// Composite is the weighted sum of similarity, popularity and batch diversity.
func (c *RankingConfig) Composite(similarity, popularity, diversity float64) float64 {
	return c.SimilarityWeight*similarity + c.PopularityWeight*popularity + c.DiversityWeight*diversity
}
