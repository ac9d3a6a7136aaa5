package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city/presenter"
	"github.com/FACorreiaa/cityinfo-api/internal/domain/poi"
	"github.com/FACorreiaa/cityinfo-api/internal/patch"
	"github.com/FACorreiaa/cityinfo-api/internal/types"
	"github.com/FACorreiaa/cityinfo-api/pkg/httpx"
	"github.com/FACorreiaa/cityinfo-api/pkg/interceptors"
)

const maxBodyBytes = 1 << 20

// PointOfInterestHandler serves the points of interest nested under a city.
type PointOfInterestHandler struct {
	service poi.Service
	logger  *slog.Logger
	// strictCityMatch additionally requires the caller's city claim to name the
	// requested city.
	strictCityMatch bool
}

func NewPointOfInterestHandler(service poi.Service, strictCityMatch bool, logger *slog.Logger) *PointOfInterestHandler {
	return &PointOfInterestHandler{service: service, logger: logger, strictCityMatch: strictCityMatch}
}

// RegisterRoutes mounts the handler under
// /api/{version}/cities/{cityId}/pointsofinterest, each route behind policy.
func (h *PointOfInterestHandler) RegisterRoutes(mux *http.ServeMux, version string, policy interceptors.Middleware) {
	base := "/api/" + version + "/cities/{cityId}/pointsofinterest"
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, interceptors.Chain(fn, policy))
	}

	route("GET "+base, h.GetPointsOfInterest)
	route("POST "+base, h.CreatePointOfInterest)
	route("GET "+base+"/{pointOfInterestId}", h.GetPointOfInterest)
	route("PUT "+base+"/{pointOfInterestId}", h.UpdatePointOfInterest)
	route("PATCH "+base+"/{pointOfInterestId}", h.PartiallyUpdatePointOfInterest)
	route("DELETE "+base+"/{pointOfInterestId}", h.DeletePointOfInterest)
}

func (h *PointOfInterestHandler) GetPointsOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, ok := h.cityID(w, r)
	if !ok {
		return
	}

	points, err := h.service.GetPointsOfInterest(r.Context(), cityID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, presenter.PointsOfInterest(points))
}

func (h *PointOfInterestHandler) GetPointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, pointID, ok := h.ids(w, r)
	if !ok {
		return
	}

	point, err := h.service.GetPointOfInterest(r.Context(), cityID, pointID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, presenter.PointOfInterest(point))
}

func (h *PointOfInterestHandler) CreatePointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, ok := h.cityID(w, r)
	if !ok {
		return
	}

	var in types.PointOfInterestForCreation
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	point, err := h.service.CreatePointOfInterest(r.Context(), cityID, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%d", strings.TrimRight(r.URL.Path, "/"), point.ID))
	httpx.WriteJSON(w, http.StatusCreated, presenter.PointOfInterest(point))
}

func (h *PointOfInterestHandler) UpdatePointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, pointID, ok := h.ids(w, r)
	if !ok {
		return
	}

	var in types.PointOfInterestForUpdate
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.UpdatePointOfInterest(r.Context(), cityID, pointID, in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PointOfInterestHandler) PartiallyUpdatePointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, pointID, ok := h.ids(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httpx.WriteError(w, r, h.logger, types.NewValidationError("patchDocument", "The request body could not be read."))
		return
	}
	doc, err := patch.Decode(body)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.PatchPointOfInterest(r.Context(), cityID, pointID, doc); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PointOfInterestHandler) DeletePointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, pointID, ok := h.ids(w, r)
	if !ok {
		return
	}

	if err := h.service.DeletePointOfInterest(r.Context(), cityID, pointID); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cityID parses the city path segment and, in strict mode, checks it against
// the caller's city claim. It writes the error response itself.
func (h *PointOfInterestHandler) cityID(w http.ResponseWriter, r *http.Request) (int, bool) {
	cityID, err := pathInt(r, "cityId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return 0, false
	}

	if h.strictCityMatch {
		var name *string
		if claims, ok := interceptors.ClaimsFromContext(r.Context()); ok {
			if city, ok := claims.Claim("city"); ok {
				name = &city
			}
		}
		if err := h.service.AuthorizeCity(r.Context(), name, cityID); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return 0, false
		}
	}
	return cityID, true
}

func (h *PointOfInterestHandler) ids(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	pointID, err := pathInt(r, "pointOfInterestId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return 0, 0, false
	}
	cityID, ok := h.cityID(w, r)
	if !ok {
		return 0, 0, false
	}
	return cityID, pointID, true
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewValidationError(name, "The value '"+raw+"' is not valid.")
	}
	return v, nil
}
