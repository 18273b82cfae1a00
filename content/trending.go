package content

import (
	"sort"
	"time"

	"github.com/branchmux/branchmux/model"
)

const (
	replyWeight = 2
	shareWeight = 3

	// TrendingWindow is the trailing window root posts compete in.
	TrendingWindow = 24 * time.Hour
)

// TrendingScore is the time-decayed engagement score:
//
//	(likes + 2*replies + 3*shares) / (hours since creation + 1)
//
// Pure and deterministic; with no new engagement it decreases monotonically
// as the post ages.
func TrendingScore(p *model.Post, now time.Time) float64 {
	hours := now.Sub(p.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	engagement := float64(p.LikesCount + replyWeight*p.RepliesCount + shareWeight*p.SharesCount)
	return engagement / (hours + 1)
}

// GetTrending ranks the non-deleted root posts of the trailing 24-hour
// window by trending score, most recent first on exact ties, and paginates
// in memory. In-memory ranking is acceptable only because the candidate set
// is time-windowed. Returns the page and the total candidate count.
func (g *Graph) GetTrending(now time.Time, page int, perPage int) ([]*model.Post, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	var candidates []*model.Post
	err := g.db.Preload("Author").
		Where("is_deleted = ? AND parent_id IS NULL AND created_at >= ?",
			false, now.Add(-TrendingWindow)).
		Find(&candidates).Error
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := TrendingScore(candidates[i], now), TrendingScore(candidates[j], now)
		if si != sj {
			return si > sj
		}
		// Documented secondary key: recency.
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	start := (page - 1) * perPage
	if start >= len(candidates) {
		return []*model.Post{}, len(candidates), nil
	}
	end := start + perPage
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[start:end], len(candidates), nil
}
