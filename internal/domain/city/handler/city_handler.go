package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city"
	"github.com/FACorreiaa/cityinfo-api/internal/domain/city/presenter"
	"github.com/FACorreiaa/cityinfo-api/internal/types"
	"github.com/FACorreiaa/cityinfo-api/pkg/httpx"
)

const (
	defaultPageNumber = 1
	defaultPageSize   = 10
	PaginationHeader  = "X-Pagination"
)

// CityHandler serves the read-only cities resource.
type CityHandler struct {
	service     city.Service
	logger      *slog.Logger
	maxPageSize int
}

func NewCityHandler(service city.Service, maxPageSize int, logger *slog.Logger) *CityHandler {
	return &CityHandler{service: service, logger: logger, maxPageSize: maxPageSize}
}

// RegisterRoutes mounts the handler under /api/{version}/cities.
func (h *CityHandler) RegisterRoutes(mux *http.ServeMux, version string) {
	mux.HandleFunc("GET /api/"+version+"/cities", h.GetCities)
	mux.HandleFunc("GET /api/"+version+"/cities/{id}", h.GetCity)
}

func (h *CityHandler) GetCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageNumber, err := intQuery(q, "pageNumber", defaultPageNumber)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	pageSize, err := intQuery(q, "pageSize", defaultPageSize)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if h.maxPageSize > 0 && pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}

	filter := city.NewCityFilter(q.Get("filteronname"), q.Get("searchvalue"))
	cities, metadata, err := h.service.GetCities(r.Context(), filter, pageNumber, pageSize)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	header, err := json.Marshal(metadata)
	if err != nil {
		httpx.WriteError(w, r, h.logger, fmt.Errorf("failed to encode pagination metadata: %w", err))
		return
	}
	w.Header().Set(PaginationHeader, string(header))
	httpx.WriteJSON(w, http.StatusOK, presenter.Cities(cities))
}

func (h *CityHandler) GetCity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, types.NewValidationError("id", "The value '"+r.PathValue("id")+"' is not valid."))
		return
	}

	include := false
	if raw := r.URL.Query().Get("includePointsOfInterest"); raw != "" {
		include, err = strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(w, r, h.logger, types.NewValidationError("includePointsOfInterest", "The value '"+raw+"' is not valid."))
			return
		}
	}

	c, err := h.service.GetCity(r.Context(), id, include)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if include {
		httpx.WriteJSON(w, http.StatusOK, presenter.City(c))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, presenter.CityWithoutPointsOfInterest(c))
}

// intQuery reads an optional integer query parameter. A malformed value is a
// *types.ValidationError keyed by the parameter name.
func intQuery(q url.Values, name string, fallback int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewValidationError(name, "The value '"+raw+"' is not valid.")
	}
	return v, nil
}
