package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city"
	"github.com/FACorreiaa/cityinfo-api/internal/domain/city/citytest"
	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *citytest.MockRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := new(citytest.MockRepository)
	svc := city.NewCityService(citytest.Provider{Repo: repo}, logger)

	mux := http.NewServeMux()
	h := NewCityHandler(svc, 20, logger)
	h.RegisterRoutes(mux, "v1")
	h.RegisterRoutes(mux, "v2")

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, repo
}

func TestCityHandler_GetCities(t *testing.T) {
	t.Run("page size is capped and metadata exposed", func(t *testing.T) {
		srv, repo := newTestServer(t)
		meta := types.NewPaginationMetadata(3, 20, 1)
		repo.On("CitiesPage", mock.Anything, city.NewCityFilter("", "the"), 1, 20).
			Return([]*types.City{{ID: 2, Name: "Antwerp"}, {ID: 1, Name: "New York City"}}, meta, nil).Once()

		resp, err := http.Get(srv.URL + "/api/v1/cities?searchvalue=the&pageSize=500")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var header types.PaginationMetadata
		require.NoError(t, json.Unmarshal([]byte(resp.Header.Get(PaginationHeader)), &header))
		assert.Equal(t, meta, header)

		var body []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body, 2)
		assert.NotContains(t, body[0], "pointsOfInterest")
		repo.AssertExpectations(t)
	})

	t.Run("defaults apply", func(t *testing.T) {
		srv, repo := newTestServer(t)
		repo.On("CitiesPage", mock.Anything, city.NewCityFilter("Paris", ""), 1, 10).
			Return([]*types.City{}, types.NewPaginationMetadata(0, 10, 1), nil).Once()

		resp, err := http.Get(srv.URL + "/api/v2/cities?filteronname=Paris")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		repo.AssertExpectations(t)
	})

	t.Run("non-numeric page number", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp, err := http.Get(srv.URL + "/api/v1/cities?pageNumber=first")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body struct {
			Errors map[string][]string `json:"errors"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"The value 'first' is not valid."}, body.Errors["pageNumber"])
	})

	t.Run("storage failure is a generic 500", func(t *testing.T) {
		srv, repo := newTestServer(t)
		repo.On("CitiesPage", mock.Anything, mock.Anything, 1, 10).
			Return(nil, types.PaginationMetadata{}, fmt.Errorf("count: %w", types.ErrStorage)).Once()

		resp, err := http.Get(srv.URL + "/api/v1/cities")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestCityHandler_GetCity(t *testing.T) {
	desc := "The one with that big park."
	nyc := &types.City{
		ID:          1,
		Name:        "New York City",
		Description: &desc,
		PointsOfInterest: []*types.PointOfInterest{
			{ID: 1, CityID: 1, Name: "Central Park"},
			{ID: 2, CityID: 1, Name: "Empire State Building"},
		},
	}

	t.Run("with points of interest", func(t *testing.T) {
		srv, repo := newTestServer(t)
		repo.On("CityByID", mock.Anything, 1, true).Return(nyc, nil).Once()

		resp, err := http.Get(srv.URL + "/api/v1/cities/1?includePointsOfInterest=true")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.EqualValues(t, 2, body["numberOfPointsOfInterest"])
	})

	t.Run("not found", func(t *testing.T) {
		srv, repo := newTestServer(t)
		repo.On("CityByID", mock.Anything, 42, false).Return(nil, nil).Once()

		resp, err := http.Get(srv.URL + "/api/v2/cities/42")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed id", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp, err := http.Get(srv.URL + "/api/v1/cities/abc")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
