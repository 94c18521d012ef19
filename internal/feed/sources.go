package feed

import "context"

// RankingSource proposes candidate authors for a viewer's discover feed.
type RankingSource interface {
	Name() string
	Candidates(ctx context.Context, viewerID string, limit int) ([]string, error)
}

// Ranking pairs a source with the number of candidates taken from it.
// A zero Limit takes everything the source returns.
type Ranking struct {
	Source RankingSource
	Limit  int
}

// BusinessRanker is the repository surface behind the default sources.
type BusinessRanker interface {
	FollowedBusinessIDs(ctx context.Context, followerID string) ([]string, error)
	PopularBusinessIDs(ctx context.Context, exclude string, limit int) ([]string, error)
	SimilarBusinessIDs(ctx context.Context, viewerID string, limit int) ([]string, error)
	RandomBusinessIDs(ctx context.Context, exclude string, limit int) ([]string, error)
}

type sourceFunc struct {
	name string
	fn   func(ctx context.Context, viewerID string, limit int) ([]string, error)
}

func (s sourceFunc) Name() string { return s.name }

func (s sourceFunc) Candidates(ctx context.Context, viewerID string, limit int) ([]string, error) {
	return s.fn(ctx, viewerID, limit)
}

// NewSource adapts a function into a RankingSource.
func NewSource(name string, fn func(ctx context.Context, viewerID string, limit int) ([]string, error)) RankingSource {
	return sourceFunc{name: name, fn: fn}
}

// DefaultRankings returns the priority-ordered sources (followed, popular,
// similar) and the random source used to top up short candidate lists.
func DefaultRankings(repo BusinessRanker) ([]Ranking, RankingSource) {
	followed := NewSource("followed", func(ctx context.Context, viewerID string, _ int) ([]string, error) {
		return repo.FollowedBusinessIDs(ctx, viewerID)
	})
	popular := NewSource("popular", repo.PopularBusinessIDs)
	similar := NewSource("similar", repo.SimilarBusinessIDs)
	random := NewSource("random", repo.RandomBusinessIDs)

	return []Ranking{
		{Source: followed},
		{Source: popular, Limit: 10},
		{Source: similar, Limit: 5},
	}, random
}
