package city

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	GetCities(ctx context.Context, filter CityFilter, pageNumber, pageSize int) ([]*types.City, types.PaginationMetadata, error)
	GetCity(ctx context.Context, cityID int, includePointsOfInterest bool) (*types.City, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	store  Provider
}

func NewCityService(store Provider, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		store:  store,
	}
}

// GetCities returns one page of cities matching filter.
func (s *ServiceImpl) GetCities(ctx context.Context, filter CityFilter, pageNumber, pageSize int) ([]*types.City, types.PaginationMetadata, error) {
	ctx, span := otel.Tracer("CityService").Start(ctx, "GetCities", trace.WithAttributes(
		attribute.String("filter.name", filter.Name),
		attribute.String("filter.search", filter.SearchQuery),
		attribute.Int("page.number", pageNumber),
		attribute.Int("page.size", pageSize),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GetCities"))
	l.DebugContext(ctx, "Retrieving cities page",
		slog.String("filter_name", filter.Name),
		slog.String("search_query", filter.SearchQuery),
		slog.Int("page_number", pageNumber),
		slog.Int("page_size", pageSize))

	cities, metadata, err := s.store.Repository().CitiesPage(ctx, filter, pageNumber, pageSize)
	if err != nil {
		l.ErrorContext(ctx, "Failed to retrieve cities from repository", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Repository operation failed")
		return nil, types.PaginationMetadata{}, fmt.Errorf("failed to retrieve cities: %w", err)
	}

	l.InfoContext(ctx, "Successfully retrieved cities",
		slog.Int("count", len(cities)),
		slog.Int("total", metadata.TotalItemCount))
	span.SetAttributes(attribute.Int("cities.count", len(cities)))
	span.SetStatus(codes.Ok, "Cities retrieved successfully")
	return cities, metadata, nil
}

// GetCity fails with types.ErrNotFound when the city does not exist.
func (s *ServiceImpl) GetCity(ctx context.Context, cityID int, includePointsOfInterest bool) (*types.City, error) {
	ctx, span := otel.Tracer("CityService").Start(ctx, "GetCity", trace.WithAttributes(
		attribute.Int("city.id", cityID),
		attribute.Bool("include_points", includePointsOfInterest),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GetCity"), slog.Int("city_id", cityID))

	city, err := s.store.Repository().CityByID(ctx, cityID, includePointsOfInterest)
	if err != nil {
		l.ErrorContext(ctx, "Failed to retrieve city from repository", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Repository operation failed")
		return nil, fmt.Errorf("failed to retrieve city: %w", err)
	}
	if city == nil {
		l.InfoContext(ctx, "City not found")
		span.SetStatus(codes.Error, "City not found")
		return nil, fmt.Errorf("city %d: %w", cityID, types.ErrNotFound)
	}

	span.SetStatus(codes.Ok, "City retrieved successfully")
	return city, nil
}
