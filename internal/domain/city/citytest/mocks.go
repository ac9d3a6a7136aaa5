// Package citytest provides test doubles for the city repository.
package citytest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city"
	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

var _ city.Repository = (*MockRepository)(nil)

// MockRepository is a testify mock of city.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CitiesPage(ctx context.Context, filter city.CityFilter, pageNumber, pageSize int) ([]*types.City, types.PaginationMetadata, error) {
	args := m.Called(ctx, filter, pageNumber, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(types.PaginationMetadata), args.Error(2)
	}
	return args.Get(0).([]*types.City), args.Get(1).(types.PaginationMetadata), args.Error(2)
}

func (m *MockRepository) CityByID(ctx context.Context, cityID int, includePointsOfInterest bool) (*types.City, error) {
	args := m.Called(ctx, cityID, includePointsOfInterest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.City), args.Error(1)
}

func (m *MockRepository) CityExists(ctx context.Context, cityID int) (bool, error) {
	args := m.Called(ctx, cityID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CityNameMatches(ctx context.Context, cityName *string, cityID int) (bool, error) {
	args := m.Called(ctx, cityName, cityID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) PointOfInterest(ctx context.Context, cityID, pointID int) (*types.PointOfInterest, error) {
	args := m.Called(ctx, cityID, pointID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PointOfInterest), args.Error(1)
}

func (m *MockRepository) PointsOfInterest(ctx context.Context, cityID int) ([]*types.PointOfInterest, error) {
	args := m.Called(ctx, cityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PointOfInterest), args.Error(1)
}

func (m *MockRepository) AddPointOfInterest(ctx context.Context, cityID int, point *types.PointOfInterest) error {
	return m.Called(ctx, cityID, point).Error(0)
}

func (m *MockRepository) RemovePointOfInterest(ctx context.Context, cityID int, point *types.PointOfInterest) error {
	return m.Called(ctx, cityID, point).Error(0)
}

func (m *MockRepository) Commit(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// Provider hands the same repository to every caller.
type Provider struct{ Repo city.Repository }

func (p Provider) Repository() city.Repository { return p.Repo }
