package city_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city"
	"github.com/FACorreiaa/cityinfo-api/internal/domain/city/citytest"
	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

func setupCityServiceTest() (*city.ServiceImpl, *citytest.MockRepository) {
	repo := new(citytest.MockRepository)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return city.NewCityService(citytest.Provider{Repo: repo}, logger), repo
}

func TestCityService_GetCities(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		svc, repo := setupCityServiceTest()
		filter := city.NewCityFilter("Antwerp", "")
		meta := types.NewPaginationMetadata(1, 10, 1)
		repo.On("CitiesPage", mock.Anything, filter, 1, 10).
			Return([]*types.City{{ID: 2, Name: "Antwerp"}}, meta, nil).Once()

		cities, got, err := svc.GetCities(ctx, filter, 1, 10)
		require.NoError(t, err)
		assert.Len(t, cities, 1)
		assert.Equal(t, meta, got)
		repo.AssertExpectations(t)
	})

	t.Run("repository error is wrapped", func(t *testing.T) {
		svc, repo := setupCityServiceTest()
		repoErr := fmt.Errorf("query failed: %w", types.ErrStorage)
		repo.On("CitiesPage", mock.Anything, mock.Anything, 1, 10).
			Return(nil, types.PaginationMetadata{}, repoErr).Once()

		_, _, err := svc.GetCities(ctx, city.CityFilter{}, 1, 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrStorage)
		repo.AssertExpectations(t)
	})
}

func TestCityService_GetCity(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		svc, repo := setupCityServiceTest()
		repo.On("CityByID", mock.Anything, 3, true).
			Return(&types.City{ID: 3, Name: "Paris"}, nil).Once()

		got, err := svc.GetCity(ctx, 3, true)
		require.NoError(t, err)
		assert.Equal(t, "Paris", got.Name)
		repo.AssertExpectations(t)
	})

	t.Run("missing city is not found", func(t *testing.T) {
		svc, repo := setupCityServiceTest()
		repo.On("CityByID", mock.Anything, 99, false).Return(nil, nil).Once()

		_, err := svc.GetCity(ctx, 99, false)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, repo := setupCityServiceTest()
		repo.On("CityByID", mock.Anything, 1, false).Return(nil, errors.New("boom")).Once()

		_, err := svc.GetCity(ctx, 1, false)
		require.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrNotFound)
	})
}
