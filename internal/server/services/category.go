package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/patrickmn/go-cache"
)

const categoriesCacheKey = "categories"

// DefaultCategories is the fixed reference set installed by seeding.
var DefaultCategories = []models.Category{
	{Name: "Identity Documents", Icon: "🆔", DisplayOrder: 1},
	{Name: "Vehicle Documents", Icon: "🚗", DisplayOrder: 2},
	{Name: "Education Documents", Icon: "🎓", DisplayOrder: 3},
	{Name: "Property Documents", Icon: "🏠", DisplayOrder: 4},
	{Name: "Financial Documents", Icon: "💰", DisplayOrder: 5},
	{Name: "Medical Documents", Icon: "🏥", DisplayOrder: 6},
	{Name: "Credentials", Icon: "🔐", DisplayOrder: 7},
	{Name: "Other", Icon: "📄", DisplayOrder: 8},
}

// CategoryCount pairs a category with the caller's document count.
type CategoryCount struct {
	*models.Category
	DocumentCount int64
}

// CategoryService serves the read-only category list. Categories change
// only through seeding, so the list is cached; counts are always live.
type CategoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       *cache.Cache
	logger      logging.Logger
}

func NewCategoryService(db *sql.DB, m repomanager.RepositoryManager, ttl time.Duration, logger logging.Logger) *CategoryService {
	return &CategoryService{
		db:          db,
		repomanager: m,
		cache:       cache.New(ttl, 2*ttl),
		logger:      logger,
	}
}

func (s *CategoryService) categories(ctx context.Context) ([]*models.Category, error) {
	if v, ok := s.cache.Get(categoriesCacheKey); ok {
		return v.([]*models.Category), nil
	}
	list, err := s.repomanager.Categories(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(categoriesCacheKey, list)
	return list, nil
}

func (s *CategoryService) List(ctx context.Context, userID string) ([]CategoryCount, error) {
	list, err := s.categories(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.repomanager.Categories(s.db).DocumentCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryCount, 0, len(list))
	for _, c := range list {
		out = append(out, CategoryCount{Category: c, DocumentCount: counts[c.ID]})
	}
	return out, nil
}

func (s *CategoryService) Get(ctx context.Context, userID string, id int64) (*CategoryCount, error) {
	c, err := s.repomanager.Categories(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repomanager.Categories(s.db).DocumentCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CategoryCount{Category: c, DocumentCount: counts[c.ID]}, nil
}

// Lookup returns a category without counts, using the cached list.
func (s *CategoryService) Lookup(ctx context.Context, id int64) (*models.Category, error) {
	list, err := s.categories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if c.ID == id {
			return c, nil
		}
	}
	return s.repomanager.Categories(s.db).GetByID(ctx, id)
}

// Seed installs DefaultCategories, skipping names that already exist, and
// returns how many were created.
func (s *CategoryService) Seed(ctx context.Context) (int, error) {
	repo := s.repomanager.Categories(s.db)
	created := 0
	for _, c := range DefaultCategories {
		c := c
		ok, err := repo.GetOrCreate(ctx, &c)
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", c.Name, err)
		}
		if ok {
			created++
			s.logger.Info(ctx, "category created", "name", c.Name, "id", c.ID)
		}
	}
	s.cache.Delete(categoriesCacheKey)
	return created, nil
}
