package poi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city"
	"github.com/FACorreiaa/cityinfo-api/internal/notification"
	"github.com/FACorreiaa/cityinfo-api/internal/patch"
	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

const deletedSubject = "Point of Interest deleted."

// Service manages the points of interest owned by a city. Every operation
// works on its own request-scoped repository and is a single unit of work.
type Service interface {
	GetPointsOfInterest(ctx context.Context, cityID int) ([]*types.PointOfInterest, error)
	GetPointOfInterest(ctx context.Context, cityID, pointID int) (*types.PointOfInterest, error)
	CreatePointOfInterest(ctx context.Context, cityID int, in types.PointOfInterestForCreation) (*types.PointOfInterest, error)
	UpdatePointOfInterest(ctx context.Context, cityID, pointID int, in types.PointOfInterestForUpdate) error
	PatchPointOfInterest(ctx context.Context, cityID, pointID int, doc patch.Document) error
	DeletePointOfInterest(ctx context.Context, cityID, pointID int) error
	// AuthorizeCity fails with types.ErrForbidden unless cityName names cityID.
	AuthorizeCity(ctx context.Context, cityName *string, cityID int) error
}

type ServiceImpl struct {
	logger *slog.Logger
	store  city.Provider
	mailer notification.Mailer
}

func NewPointOfInterestService(store city.Provider, mailer notification.Mailer, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		store:  store,
		mailer: mailer,
	}
}

func (s *ServiceImpl) GetPointsOfInterest(ctx context.Context, cityID int) ([]*types.PointOfInterest, error) {
	ctx, span := otel.Tracer("PointOfInterestService").Start(ctx, "GetPointsOfInterest", trace.WithAttributes(
		attribute.Int("city.id", cityID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GetPointsOfInterest"), slog.Int("city_id", cityID))
	repo := s.store.Repository()

	if err := requireCity(ctx, repo, cityID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.InfoContext(ctx, "City wasn't found when accessing points of interest")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "City lookup failed")
		return nil, err
	}

	points, err := repo.PointsOfInterest(ctx, cityID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to retrieve points of interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Repository operation failed")
		return nil, fmt.Errorf("failed to retrieve points of interest: %w", err)
	}

	span.SetAttributes(attribute.Int("poi.count", len(points)))
	span.SetStatus(codes.Ok, "Points of interest retrieved")
	return points, nil
}

func (s *ServiceImpl) GetPointOfInterest(ctx context.Context, cityID, pointID int) (*types.PointOfInterest, error) {
	ctx, span := otel.Tracer("PointOfInterestService").Start(ctx, "GetPointOfInterest", trace.WithAttributes(
		attribute.Int("city.id", cityID),
		attribute.Int("poi.id", pointID),
	))
	defer span.End()

	point, err := s.load(ctx, s.store.Repository(), cityID, pointID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Point of interest retrieved")
	return point, nil
}

// CreatePointOfInterest validates in, appends it to the city and commits. The
// returned point carries the id assigned by storage.
func (s *ServiceImpl) CreatePointOfInterest(ctx context.Context, cityID int, in types.PointOfInterestForCreation) (*types.PointOfInterest, error) {
	ctx, span := otel.Tracer("PointOfInterestService").Start(ctx, "CreatePointOfInterest", trace.WithAttributes(
		attribute.Int("city.id", cityID),
		attribute.String("poi.name", in.Name),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreatePointOfInterest"), slog.Int("city_id", cityID))

	if err := in.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid input")
		return nil, err
	}

	repo := s.store.Repository()
	if err := requireCity(ctx, repo, cityID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "City lookup failed")
		return nil, err
	}

	point := &types.PointOfInterest{Name: in.Name, Description: in.Description}
	if err := repo.AddPointOfInterest(ctx, cityID, point); err != nil {
		l.ErrorContext(ctx, "Failed to add point of interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Repository operation failed")
		return nil, fmt.Errorf("failed to add point of interest: %w", err)
	}

	if err := commit(ctx, repo); err != nil {
		l.ErrorContext(ctx, "Failed to save point of interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return nil, err
	}

	l.InfoContext(ctx, "Point of interest created", slog.Int("poi_id", point.ID))
	span.SetAttributes(attribute.Int("poi.id", point.ID))
	span.SetStatus(codes.Ok, "Point of interest created")
	return point, nil
}

// UpdatePointOfInterest replaces both fields of an existing point.
func (s *ServiceImpl) UpdatePointOfInterest(ctx context.Context, cityID, pointID int, in types.PointOfInterestForUpdate) error {
	ctx, span := otel.Tracer("PointOfInterestService").Start(ctx, "UpdatePointOfInterest", trace.WithAttributes(
		attribute.Int("city.id", cityID),
		attribute.Int("poi.id", pointID),
	))
	defer span.End()

	if err := in.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid input")
		return err
	}

	repo := s.store.Repository()
	point, err := s.load(ctx, repo, cityID, pointID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return err
	}

	in.ApplyTo(point)
	if err := commit(ctx, repo); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update point of interest",
			slog.String("method", "UpdatePointOfInterest"),
			slog.Int("city_id", cityID),
			slog.Int("poi_id", pointID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return err
	}

	span.SetStatus(codes.Ok, "Point of interest updated")
	return nil
}

// PatchPointOfInterest applies doc to a transient projection of the point and
// validates the result. The entity is only touched once both succeed, and
// storage only on commit.
func (s *ServiceImpl) PatchPointOfInterest(ctx context.Context, cityID, pointID int, doc patch.Document) error {
	ctx, span := otel.Tracer("PointOfInterestService").Start(ctx, "PatchPointOfInterest", trace.WithAttributes(
		attribute.Int("city.id", cityID),
		attribute.Int("poi.id", pointID),
		attribute.Int("patch.operations", len(doc)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "PatchPointOfInterest"),
		slog.Int("city_id", cityID),
		slog.Int("poi_id", pointID))

	repo := s.store.Repository()
	point, err := s.load(ctx, repo, cityID, pointID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return err
	}

	toPatch := types.NewPointOfInterestForUpdate(point)
	if err := patch.Apply(doc, &toPatch); err != nil {
		l.InfoContext(ctx, "Patch document rejected", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Patch rejected")
		return err
	}
	if err := toPatch.Validate(); err != nil {
		l.InfoContext(ctx, "Patched point of interest is invalid", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid result")
		return err
	}

	toPatch.ApplyTo(point)
	if err := commit(ctx, repo); err != nil {
		l.ErrorContext(ctx, "Failed to save patched point of interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return err
	}

	span.SetStatus(codes.Ok, "Point of interest patched")
	return nil
}

// DeletePointOfInterest removes the point and then notifies the mailer.
// Notification failures are logged and never fail the request.
func (s *ServiceImpl) DeletePointOfInterest(ctx context.Context, cityID, pointID int) error {
	ctx, span := otel.Tracer("PointOfInterestService").Start(ctx, "DeletePointOfInterest", trace.WithAttributes(
		attribute.Int("city.id", cityID),
		attribute.Int("poi.id", pointID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "DeletePointOfInterest"),
		slog.Int("city_id", cityID),
		slog.Int("poi_id", pointID))

	repo := s.store.Repository()
	point, err := s.load(ctx, repo, cityID, pointID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return err
	}

	if err := repo.RemovePointOfInterest(ctx, cityID, point); err != nil {
		l.ErrorContext(ctx, "Failed to remove point of interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Repository operation failed")
		return fmt.Errorf("failed to remove point of interest: %w", err)
	}
	if err := commit(ctx, repo); err != nil {
		l.ErrorContext(ctx, "Failed to delete point of interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return err
	}

	message := fmt.Sprintf("Point of interest %s with Id %d was removed", point.Name, pointID)
	// the row is gone; a client hanging up now must not cancel the notice
	if err := s.mailer.Send(context.WithoutCancel(ctx), deletedSubject, message); err != nil {
		l.WarnContext(ctx, "Failed to send deletion notification", slog.Any("error", err))
	}

	l.InfoContext(ctx, "Point of interest deleted")
	span.SetStatus(codes.Ok, "Point of interest deleted")
	return nil
}

func (s *ServiceImpl) AuthorizeCity(ctx context.Context, cityName *string, cityID int) error {
	ok, err := s.store.Repository().CityNameMatches(ctx, cityName, cityID)
	if err != nil {
		return fmt.Errorf("failed to match city claim: %w", err)
	}
	if !ok {
		s.logger.InfoContext(ctx, "City claim does not match requested city",
			slog.String("method", "AuthorizeCity"),
			slog.Int("city_id", cityID))
		return fmt.Errorf("city %d: %w", cityID, types.ErrForbidden)
	}
	return nil
}

// load resolves a point scoped to its owning city.
func (s *ServiceImpl) load(ctx context.Context, repo city.Repository, cityID, pointID int) (*types.PointOfInterest, error) {
	if err := requireCity(ctx, repo, cityID); err != nil {
		return nil, err
	}

	point, err := repo.PointOfInterest(ctx, cityID, pointID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to retrieve point of interest",
			slog.Int("city_id", cityID),
			slog.Int("poi_id", pointID),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to retrieve point of interest: %w", err)
	}
	if point == nil {
		return nil, fmt.Errorf("point of interest %d in city %d: %w", pointID, cityID, types.ErrNotFound)
	}
	return point, nil
}

func requireCity(ctx context.Context, repo city.Repository, cityID int) error {
	exists, err := repo.CityExists(ctx, cityID)
	if err != nil {
		return fmt.Errorf("failed to check city: %w", err)
	}
	if !exists {
		return fmt.Errorf("city %d: %w", cityID, types.ErrNotFound)
	}
	return nil
}

func commit(ctx context.Context, repo city.Repository) error {
	ok, err := repo.Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to save changes: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to save changes: %w", types.ErrStorage)
	}
	return nil
}
