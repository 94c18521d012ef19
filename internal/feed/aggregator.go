// Package feed builds the paginated discover feed of business statuses.
package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
)

const (
	DefaultThreshold     = 30
	DefaultMaxCandidates = 20
	DefaultMinCandidates = 5
	DefaultPageSize      = 10
	MaxPageSize          = 50

	defaultAuthorName = "Business User"
)

// StatusSource is the status store surface the feed reads from.
type StatusSource interface {
	CountActiveBusiness(ctx context.Context, exclude string, now time.Time) (int, error)
	PaginateRecentBusiness(ctx context.Context, exclude string, now time.Time, page, pageSize int) ([]models.Status, error)
	Paginate(ctx context.Context, authorIDs []string, exclude string, now time.Time, page, pageSize int) ([]models.Status, error)
	ViewedIDs(ctx context.Context, viewerID string, authorIDs []string) (map[string]bool, error)
}

// AuthorSource resolves public author details.
type AuthorSource interface {
	BasicInfo(ctx context.Context, ids []string) ([]models.UserBasicInfo, error)
}

// Item is a status annotated with the viewer's seen state.
type Item struct {
	models.Status
	Viewed bool
}

// Group collects one author's statuses on a page.
type Group struct {
	AuthorID      string
	AuthorName    string
	AuthorAvatar  string
	Statuses      []Item
	UpdatedAt     time.Time
	UnviewedCount int
}

// Page is one page of the discover feed.
type Page struct {
	Groups      []Group
	HasMore     bool
	TotalPages  int
	CurrentPage int
}

// Aggregator decides between recent pagination and a ranked candidate feed.
type Aggregator struct {
	Statuses StatusSource
	Authors  AuthorSource
	Rankings []Ranking
	Fill     RankingSource

	Threshold     int
	MaxCandidates int
	MinCandidates int
	NowFunc       func() time.Time
}

// NewAggregator wires the default thresholds and ranking sources.
func NewAggregator(statuses StatusSource, authors AuthorSource, ranker BusinessRanker) *Aggregator {
	rankings, fill := DefaultRankings(ranker)
	return &Aggregator{
		Statuses:      statuses,
		Authors:       authors,
		Rankings:      rankings,
		Fill:          fill,
		Threshold:     DefaultThreshold,
		MaxCandidates: DefaultMaxCandidates,
		MinCandidates: DefaultMinCandidates,
	}
}

// Feed returns page of viewerID's discover feed. Small corpora are served
// newest first; larger ones are restricted to ranked candidate authors.
func (a *Aggregator) Feed(ctx context.Context, viewerID string, page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, apperr.Validation("page must be greater than 0")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return Page{}, apperr.Validation(fmt.Sprintf("pageSize must be between 1 and %d", MaxPageSize))
	}

	ctx, span := logging.StartSpan(ctx, "feed.build")
	defer span.End()

	now := a.now()

	var (
		total  int
		recent []models.Status
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.Statuses.CountActiveBusiness(gctx, viewerID, now)
		if err != nil {
			return fmt.Errorf("count business statuses: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		out, err := a.Statuses.PaginateRecentBusiness(gctx, viewerID, now, page, pageSize)
		if err != nil {
			return fmt.Errorf("paginate feed: %w", err)
		}
		recent = out
		return nil
	})
	if err := g.Wait(); err != nil {
		span.Fail(err)
		return Page{}, err
	}

	statuses := recent
	if total > a.threshold() {
		candidates, err := a.Candidates(ctx, viewerID)
		if err != nil {
			span.Fail(err)
			return Page{}, err
		}
		if len(candidates) > 0 {
			statuses, err = a.Statuses.Paginate(ctx, candidates, viewerID, now, page, pageSize)
			if err != nil {
				span.Fail(err)
				return Page{}, fmt.Errorf("paginate feed: %w", err)
			}
		}
	}

	totalPages := (total + pageSize - 1) / pageSize
	result := Page{
		HasMore:     page < totalPages,
		TotalPages:  totalPages,
		CurrentPage: page,
		Groups:      []Group{},
	}
	if len(statuses) == 0 {
		return result, nil
	}

	authorIDs := distinctAuthors(statuses)
	var (
		infos  []models.UserBasicInfo
		viewed map[string]bool
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := a.Authors.BasicInfo(gctx, authorIDs)
		if err != nil {
			return fmt.Errorf("load authors: %w", err)
		}
		infos = out
		return nil
	})
	g.Go(func() error {
		out, err := a.Statuses.ViewedIDs(gctx, viewerID, authorIDs)
		if err != nil {
			return fmt.Errorf("load viewed statuses: %w", err)
		}
		viewed = out
		return nil
	})
	if err := g.Wait(); err != nil {
		span.Fail(err)
		return Page{}, err
	}

	result.Groups = GroupStatuses(statuses, infos, viewed)
	return result, nil
}

// Candidates builds the deduplicated, capped candidate author list. Ranked
// sources contribute in priority order; the fill source only tops up lists
// shorter than MinCandidates.
func (a *Aggregator) Candidates(ctx context.Context, viewerID string) ([]string, error) {
	results := make([][]string, len(a.Rankings))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range a.Rankings {
		g.Go(func() error {
			ids, err := r.Source.Candidates(gctx, viewerID, r.Limit)
			if err != nil {
				return fmt.Errorf("%s candidates: %w", r.Source.Name(), err)
			}
			if r.Limit > 0 && len(ids) > r.Limit {
				ids = ids[:r.Limit]
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []string
	for _, ids := range results {
		merged = append(merged, ids...)
	}
	unique := dedupe(merged, viewerID, 0)

	if a.Fill != nil && len(unique) < a.minCandidates() {
		ids, err := a.Fill.Candidates(ctx, viewerID, a.minCandidates()-len(unique))
		if err != nil {
			return nil, fmt.Errorf("%s candidates: %w", a.Fill.Name(), err)
		}
		unique = append(unique, ids...)
	}

	return dedupe(unique, viewerID, a.maxCandidates()), nil
}

// GroupStatuses groups statuses by author, dropping authors without basic
// info, and orders groups by their most recent update.
func GroupStatuses(statuses []models.Status, infos []models.UserBasicInfo, viewed map[string]bool) []Group {
	byID := make(map[string]models.UserBasicInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}

	index := make(map[string]int)
	groups := []Group{}
	for _, s := range statuses {
		info, ok := byID[s.UserID]
		if !ok {
			continue
		}
		i, seen := index[s.UserID]
		if !seen {
			name := info.Name
			if name == "" {
				name = defaultAuthorName
			}
			groups = append(groups, Group{AuthorID: s.UserID, AuthorName: name, AuthorAvatar: info.ProfilePicURL})
			i = len(groups) - 1
			index[s.UserID] = i
		}

		item := Item{Status: s, Viewed: viewed[s.ID]}
		g := &groups[i]
		g.Statuses = append(g.Statuses, item)
		if !item.Viewed {
			g.UnviewedCount++
		}
		if s.UpdatedAt.After(g.UpdatedAt) {
			g.UpdatedAt = s.UpdatedAt
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].UpdatedAt.After(groups[j].UpdatedAt)
	})
	return groups
}

func distinctAuthors(statuses []models.Status) []string {
	seen := make(map[string]struct{}, len(statuses))
	var ids []string
	for _, s := range statuses {
		if _, ok := seen[s.UserID]; ok {
			continue
		}
		seen[s.UserID] = struct{}{}
		ids = append(ids, s.UserID)
	}
	return ids
}

// dedupe keeps the first occurrence of each id, skipping exclude. A
// non-positive limit keeps every id.
func dedupe(ids []string, exclude string, limit int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (a *Aggregator) threshold() int {
	if a.Threshold > 0 {
		return a.Threshold
	}
	return DefaultThreshold
}

func (a *Aggregator) maxCandidates() int {
	if a.MaxCandidates > 0 {
		return a.MaxCandidates
	}
	return DefaultMaxCandidates
}

func (a *Aggregator) minCandidates() int {
	if a.MinCandidates > 0 {
		return a.MinCandidates
	}
	return DefaultMinCandidates
}

func (a *Aggregator) now() time.Time {
	if a.NowFunc != nil {
		return a.NowFunc().UTC()
	}
	return time.Now().UTC()
}
