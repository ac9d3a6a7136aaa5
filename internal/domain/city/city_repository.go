package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// DB is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgxmock.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the request-scoped unit of work over cities and their points
// of interest. It is the only writer of entity state: reads are tracked, edits
// made to returned entities are detected on Commit, and nothing reaches the
// database before Commit. A Repository is not safe for concurrent use.
type Repository interface {
	CitiesPage(ctx context.Context, filter CityFilter, pageNumber, pageSize int) ([]*types.City, types.PaginationMetadata, error)
	CityByID(ctx context.Context, cityID int, includePointsOfInterest bool) (*types.City, error)
	CityExists(ctx context.Context, cityID int) (bool, error)
	CityNameMatches(ctx context.Context, cityName *string, cityID int) (bool, error)

	PointOfInterest(ctx context.Context, cityID, pointID int) (*types.PointOfInterest, error)
	PointsOfInterest(ctx context.Context, cityID int) ([]*types.PointOfInterest, error)

	// AddPointOfInterest appends point to the owning city. It is a no-op when
	// the city does not exist; callers check CityExists first. Between that
	// check and Commit the city may be deleted by another request, in which
	// case Commit fails with types.ErrNotFound through the foreign key.
	AddPointOfInterest(ctx context.Context, cityID int, point *types.PointOfInterest) error
	// RemovePointOfInterest detaches point from the owning city. The row is
	// deleted on Commit.
	RemovePointOfInterest(ctx context.Context, cityID int, point *types.PointOfInterest) error

	// Commit persists every pending change in a single transaction. It reports
	// true when storage accepted the changes (zero pending changes included).
	Commit(ctx context.Context) (bool, error)
}

// Provider hands out a fresh Repository for each request.
type Provider interface {
	Repository() Repository
}

// Store owns the shared pool and creates request-scoped repositories.
type Store struct {
	logger *slog.Logger
	db     DB
}

func NewStore(db DB, logger *slog.Logger) *Store {
	return &Store{logger: logger, db: db}
}

func (s *Store) Repository() Repository {
	return NewCityRepository(s.db, s.logger)
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const (
	cityByIDQuery          = `SELECT id, name, description FROM cities WHERE id = $1`
	cityExistsQuery        = `SELECT EXISTS (SELECT 1 FROM cities WHERE id = $1)`
	cityNameMatchesQuery   = `SELECT EXISTS (SELECT 1 FROM cities WHERE id = $1 AND name = $2)`
	pointsByCityQuery      = `SELECT id, city_id, name, description FROM points_of_interest WHERE city_id = $1 ORDER BY id`
	pointByCityAndIDQuery  = `SELECT id, city_id, name, description FROM points_of_interest WHERE city_id = $1 AND id = $2`
	insertPointQuery       = `INSERT INTO points_of_interest (city_id, name, description) VALUES ($1, $2, $3) RETURNING id`
	deletePointQuery       = `DELETE FROM points_of_interest WHERE id = $1 AND city_id = $2`
	foreignKeyViolationErr = "23503"
)

type RepositoryImpl struct {
	logger *slog.Logger
	db     DB

	cities map[int]*types.City
	points map[int]*types.PointOfInterest
	// field values of each tracked point as last read from or written to storage
	originals map[int]types.PointOfInterest
	removed   map[int]*types.PointOfInterest
	// cities whose PointsOfInterest reflect storage
	collections map[int]bool
}

func NewCityRepository(db DB, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger:      logger,
		db:          db,
		cities:      make(map[int]*types.City),
		points:      make(map[int]*types.PointOfInterest),
		originals:   make(map[int]types.PointOfInterest),
		removed:     make(map[int]*types.PointOfInterest),
		collections: make(map[int]bool),
	}
}

// CitiesPage returns one page of cities matching filter, ordered by name and
// then id so consecutive pages neither repeat nor skip rows.
func (r *RepositoryImpl) CitiesPage(ctx context.Context, filter CityFilter, pageNumber, pageSize int) ([]*types.City, types.PaginationMetadata, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "CitiesPage", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "cities"),
		attribute.Int("page.number", pageNumber),
		attribute.Int("page.size", pageSize),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CitiesPage"))

	if pageSize < 1 {
		span.SetStatus(codes.Error, "invalid page size")
		return nil, types.PaginationMetadata{}, fmt.Errorf("page size must be positive, got %d: %w", pageSize, types.ErrBadRequest)
	}

	pred := filter.Predicate()

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("cities").Where(pred).ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, types.PaginationMetadata{}, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		l.ErrorContext(ctx, "Failed to count cities", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB count failed")
		return nil, types.PaginationMetadata{}, storageError("failed to count cities", err)
	}

	metadata := types.NewPaginationMetadata(total, pageSize, pageNumber)
	// pages outside 1..TotalPages are empty; bounding pageNumber here also
	// keeps the offset below total
	if pageNumber < 1 || pageNumber > metadata.TotalPages {
		l.DebugContext(ctx, "Page number outside result set, returning empty page",
			slog.Int("page_number", pageNumber),
			slog.Int("total_pages", metadata.TotalPages))
		span.SetStatus(codes.Ok, "Empty page")
		return []*types.City{}, metadata, nil
	}

	query, args, err := psql.Select("id", "name", "description").
		From("cities").
		Where(pred).
		OrderBy("name ASC", "id ASC").
		Offset(uint64(pageSize * (pageNumber - 1))).
		Limit(uint64(pageSize)).
		ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, types.PaginationMetadata{}, fmt.Errorf("failed to build cities query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query cities", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, types.PaginationMetadata{}, storageError("failed to query cities", err)
	}
	defer rows.Close()

	cities := make([]*types.City, 0, pageSize)
	for rows.Next() {
		var c types.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			l.ErrorContext(ctx, "Failed to scan city row", slog.Any("error", err))
			span.RecordError(err)
			return nil, types.PaginationMetadata{}, storageError("failed to scan city", err)
		}
		cities = append(cities, r.trackCity(&c))
	}
	if err := rows.Err(); err != nil {
		l.ErrorContext(ctx, "Error iterating city rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, types.PaginationMetadata{}, storageError("failed to read cities", err)
	}

	l.DebugContext(ctx, "Fetched cities page",
		slog.Int("count", len(cities)),
		slog.Int("total", total),
		slog.Int("page_number", pageNumber))
	span.SetAttributes(attribute.Int("cities.total", total))
	span.SetStatus(codes.Ok, "Cities page fetched")
	return cities, metadata, nil
}

// CityByID returns nil without error when the city does not exist.
func (r *RepositoryImpl) CityByID(ctx context.Context, cityID int, includePointsOfInterest bool) (*types.City, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "CityByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.Int("city.id", cityID),
		attribute.Bool("include_points", includePointsOfInterest),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CityByID"), slog.Int("city_id", cityID))

	city, tracked := r.cities[cityID]
	if !tracked {
		var c types.City
		err := r.db.QueryRow(ctx, cityByIDQuery, cityID).Scan(&c.ID, &c.Name, &c.Description)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				l.DebugContext(ctx, "City not found")
				span.SetStatus(codes.Ok, "City not found")
				return nil, nil
			}
			l.ErrorContext(ctx, "Failed to fetch city", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB query failed")
			return nil, storageError("failed to fetch city", err)
		}
		city = r.trackCity(&c)
	}

	if includePointsOfInterest && !r.collections[cityID] {
		points, err := r.queryPoints(ctx, pointsByCityQuery, cityID)
		if err != nil {
			l.ErrorContext(ctx, "Failed to fetch points of interest", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB query failed")
			return nil, err
		}
		r.attachPoints(city, points)
	}

	span.SetStatus(codes.Ok, "City fetched")
	return city, nil
}

func (r *RepositoryImpl) CityExists(ctx context.Context, cityID int) (bool, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "CityExists", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.Int("city.id", cityID),
	))
	defer span.End()

	var exists bool
	if err := r.db.QueryRow(ctx, cityExistsQuery, cityID).Scan(&exists); err != nil {
		r.logger.ErrorContext(ctx, "Failed to check city existence",
			slog.String("method", "CityExists"),
			slog.Int("city_id", cityID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return false, storageError("failed to check city existence", err)
	}

	span.SetAttributes(attribute.Bool("city.exists", exists))
	return exists, nil
}

// CityNameMatches reports whether cityID carries exactly cityName. A nil name
// never matches.
func (r *RepositoryImpl) CityNameMatches(ctx context.Context, cityName *string, cityID int) (bool, error) {
	if cityName == nil {
		return false, nil
	}

	ctx, span := otel.Tracer("CityRepository").Start(ctx, "CityNameMatches", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.Int("city.id", cityID),
	))
	defer span.End()

	var matches bool
	if err := r.db.QueryRow(ctx, cityNameMatchesQuery, cityID, *cityName).Scan(&matches); err != nil {
		r.logger.ErrorContext(ctx, "Failed to match city name",
			slog.String("method", "CityNameMatches"),
			slog.Int("city_id", cityID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return false, storageError("failed to match city name", err)
	}
	return matches, nil
}

// PointOfInterest is scoped to the owning city: a point that exists under a
// different city is reported as absent.
func (r *RepositoryImpl) PointOfInterest(ctx context.Context, cityID, pointID int) (*types.PointOfInterest, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "PointOfInterest", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "points_of_interest"),
		attribute.Int("city.id", cityID),
		attribute.Int("poi.id", pointID),
	))
	defer span.End()

	if p, ok := r.points[pointID]; ok {
		if p.CityID != cityID || r.removed[pointID] != nil {
			return nil, nil
		}
		return p, nil
	}

	points, err := r.queryPoints(ctx, pointByCityAndIDQuery, cityID, pointID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch point of interest",
			slog.String("method", "PointOfInterest"),
			slog.Int("city_id", cityID),
			slog.Int("poi_id", pointID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points[0], nil
}

func (r *RepositoryImpl) PointsOfInterest(ctx context.Context, cityID int) ([]*types.PointOfInterest, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "PointsOfInterest", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "points_of_interest"),
		attribute.Int("city.id", cityID),
	))
	defer span.End()

	points, err := r.queryPoints(ctx, pointsByCityQuery, cityID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch points of interest",
			slog.String("method", "PointsOfInterest"),
			slog.Int("city_id", cityID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("poi.count", len(points)))
	return points, nil
}

func (r *RepositoryImpl) AddPointOfInterest(ctx context.Context, cityID int, point *types.PointOfInterest) error {
	city, err := r.CityByID(ctx, cityID, false)
	if err != nil {
		return err
	}
	if city == nil {
		r.logger.WarnContext(ctx, "Owning city vanished before point of interest was added",
			slog.String("method", "AddPointOfInterest"),
			slog.Int("city_id", cityID))
		return nil
	}

	point.CityID = cityID
	city.PointsOfInterest = append(city.PointsOfInterest, point)
	return nil
}

func (r *RepositoryImpl) RemovePointOfInterest(ctx context.Context, cityID int, point *types.PointOfInterest) error {
	city, err := r.CityByID(ctx, cityID, false)
	if err != nil {
		return err
	}
	if city == nil {
		r.logger.WarnContext(ctx, "Owning city vanished before point of interest was removed",
			slog.String("method", "RemovePointOfInterest"),
			slog.Int("city_id", cityID))
		return nil
	}

	city.PointsOfInterest = slices.DeleteFunc(city.PointsOfInterest, func(p *types.PointOfInterest) bool {
		return p == point || (!point.IsNew() && p.ID == point.ID)
	})
	if !point.IsNew() && point.CityID == cityID {
		r.removed[point.ID] = point
	}
	return nil
}

func (r *RepositoryImpl) Commit(ctx context.Context) (bool, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "Commit", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "points_of_interest"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Commit"))

	deletes := r.pendingDeletes()
	inserts := r.pendingInserts()
	updates := r.pendingUpdates()
	span.SetAttributes(
		attribute.Int("pending.deletes", len(deletes)),
		attribute.Int("pending.inserts", len(inserts)),
		attribute.Int("pending.updates", len(updates)),
	)

	if len(deletes)+len(inserts)+len(updates) == 0 {
		l.DebugContext(ctx, "Nothing to commit")
		span.SetStatus(codes.Ok, "No changes")
		return true, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Begin failed")
		return false, storageError("failed to begin transaction", err)
	}

	rollback := func(msg string, err error) (bool, error) {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			l.ErrorContext(ctx, "Failed to rollback transaction", slog.Any("rollback_error", rbErr))
		}
		l.ErrorContext(ctx, msg, slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return false, storageError(msg, err)
	}

	var changes int64
	for _, p := range deletes {
		tag, err := tx.Exec(ctx, deletePointQuery, p.ID, p.CityID)
		if err != nil {
			return rollback("failed to delete point of interest", err)
		}
		changes += tag.RowsAffected()
	}

	assigned := make(map[*types.PointOfInterest]int, len(inserts))
	for _, p := range inserts {
		var id int
		if err := tx.QueryRow(ctx, insertPointQuery, p.CityID, p.Name, p.Description).Scan(&id); err != nil {
			return rollback("failed to insert point of interest", err)
		}
		assigned[p] = id
		changes++
	}

	for _, p := range updates {
		query, args, err := psql.Update("points_of_interest").
			Set("name", p.Name).
			Set("description", p.Description).
			Where(squirrel.Eq{"id": p.ID, "city_id": p.CityID}).
			ToSql()
		if err != nil {
			return rollback("failed to build point of interest update", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return rollback("failed to update point of interest", err)
		}
		changes += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		l.ErrorContext(ctx, "Failed to commit transaction", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return false, storageError("failed to commit transaction", err)
	}

	// ids only become visible once the transaction landed
	for p, id := range assigned {
		p.ID = id
		r.track(p)
	}
	for _, p := range updates {
		r.originals[p.ID] = snapshot(p)
	}
	for id := range r.removed {
		delete(r.points, id)
		delete(r.originals, id)
	}
	clear(r.removed)

	l.InfoContext(ctx, "Changes committed", slog.Int64("rows_affected", changes))
	span.SetAttributes(attribute.Int64("rows.affected", changes))
	span.SetStatus(codes.Ok, "Committed")
	return changes >= 0, nil
}

func (r *RepositoryImpl) queryPoints(ctx context.Context, query string, args ...any) ([]*types.PointOfInterest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError("failed to query points of interest", err)
	}
	defer rows.Close()

	points := make([]*types.PointOfInterest, 0)
	for rows.Next() {
		var p types.PointOfInterest
		if err := rows.Scan(&p.ID, &p.CityID, &p.Name, &p.Description); err != nil {
			return nil, storageError("failed to scan point of interest", err)
		}
		if r.removed[p.ID] != nil {
			continue
		}
		points = append(points, r.track(&p))
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to read points of interest", err)
	}
	return points, nil
}

// trackCity returns the tracked instance for c.ID, registering c if unseen.
func (r *RepositoryImpl) trackCity(c *types.City) *types.City {
	if existing, ok := r.cities[c.ID]; ok {
		return existing
	}
	r.cities[c.ID] = c
	return c
}

func (r *RepositoryImpl) track(p *types.PointOfInterest) *types.PointOfInterest {
	if existing, ok := r.points[p.ID]; ok {
		return existing
	}
	r.points[p.ID] = p
	r.originals[p.ID] = snapshot(p)
	if city, ok := r.cities[p.CityID]; ok && r.collections[p.CityID] && !slices.Contains(city.PointsOfInterest, p) {
		city.PointsOfInterest = append(city.PointsOfInterest, p)
	}
	return p
}

// attachPoints sets the city's collection to the stored points followed by
// points added in this request and not yet committed.
func (r *RepositoryImpl) attachPoints(city *types.City, stored []*types.PointOfInterest) {
	merged := make([]*types.PointOfInterest, 0, len(stored)+len(city.PointsOfInterest))
	merged = append(merged, stored...)
	for _, p := range city.PointsOfInterest {
		if p.IsNew() {
			merged = append(merged, p)
		}
	}
	city.PointsOfInterest = merged
	r.collections[city.ID] = true
}

func (r *RepositoryImpl) pendingDeletes() []*types.PointOfInterest {
	out := make([]*types.PointOfInterest, 0, len(r.removed))
	for _, p := range r.removed {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *RepositoryImpl) pendingInserts() []*types.PointOfInterest {
	ids := make([]int, 0, len(r.cities))
	for id := range r.cities {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []*types.PointOfInterest
	for _, id := range ids {
		for _, p := range r.cities[id].PointsOfInterest {
			if p.IsNew() {
				out = append(out, p)
			}
		}
	}
	return out
}

func (r *RepositoryImpl) pendingUpdates() []*types.PointOfInterest {
	var out []*types.PointOfInterest
	for id, p := range r.points {
		if r.removed[id] != nil {
			continue
		}
		if changed(r.originals[id], p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func snapshot(p *types.PointOfInterest) types.PointOfInterest {
	s := *p
	if p.Description != nil {
		d := *p.Description
		s.Description = &d
	}
	return s
}

func changed(original types.PointOfInterest, current *types.PointOfInterest) bool {
	if original.Name != current.Name {
		return true
	}
	switch {
	case original.Description == nil && current.Description == nil:
		return false
	case original.Description == nil || current.Description == nil:
		return true
	default:
		return *original.Description != *current.Description
	}
}

func storageError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationErr {
		return fmt.Errorf("%s: owning city no longer exists: %w", msg, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", msg, types.ErrStorage, err)
}
