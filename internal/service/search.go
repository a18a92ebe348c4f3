package service

import (
	"context"
	"strings"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/repository"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type SearchStore interface {
	Search(ctx context.Context, p repository.SearchParams) ([]repository.SearchResult, int, error)
	FindByQrCode(ctx context.Context, userID, code string) (*repository.SearchResult, error)
}

// SearchService scopes every query to the caller's accessible locations;
// the scoping happens inside the repository SQL, before pagination.
type SearchService struct {
	store SearchStore
}

func NewSearchService(store SearchStore) *SearchService {
	return &SearchService{store: store}
}

type SearchPage struct {
	Results  []repository.SearchResult `json:"results"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
}

func (s *SearchService) Search(ctx context.Context, userID string, p repository.SearchParams, page, pageSize int) (*SearchPage, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, apperr.Invalid(map[string]string{"q": "query is required"})
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	p.UserID = userID
	p.Query = query
	p.Limit = pageSize
	p.Offset = (page - 1) * pageSize

	results, total, err := s.store.Search(ctx, p)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []repository.SearchResult{}
	}
	return &SearchPage{Results: results, Total: total, Page: page, PageSize: pageSize}, nil
}

// SearchByQrCode is the high-precision path behind the scanner: exact
// box code first, exact item name as the fallback, one result at most.
func (s *SearchService) SearchByQrCode(ctx context.Context, userID, code string) (*repository.SearchResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Invalid(map[string]string{"code": "code is required"})
	}
	return s.store.FindByQrCode(ctx, userID, code)
}
