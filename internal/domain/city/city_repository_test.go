package city

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

var (
	cityColumns  = []string{"id", "name", "description"}
	pointColumns = []string{"id", "city_id", "name", "description"}
)

func strPtr(s string) *string { return &s }

func newMockRepository(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCityRepository(mock, logger), mock
}

func expectCity(mock pgxmock.PgxPoolIface, id int, name string) {
	mock.ExpectQuery(regexp.QuoteMeta(cityByIDQuery)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cityColumns).AddRow(id, name, (*string)(nil)))
}

func expectPoints(mock pgxmock.PgxPoolIface, cityID int, points ...types.PointOfInterest) {
	rows := pgxmock.NewRows(pointColumns)
	for _, p := range points {
		rows.AddRow(p.ID, p.CityID, p.Name, p.Description)
	}
	mock.ExpectQuery(regexp.QuoteMeta(pointsByCityQuery)).WithArgs(cityID).WillReturnRows(rows)
}

func TestCityRepository_CitiesPage(t *testing.T) {
	ctx := context.Background()

	t.Run("first page with metadata", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cities WHERE (1=1)")).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description FROM cities WHERE (1=1) ORDER BY name ASC, id ASC LIMIT 10 OFFSET 0")).
			WillReturnRows(pgxmock.NewRows(cityColumns).
				AddRow(2, "Antwerp", strPtr("The one with the cathedral that was never really finished.")).
				AddRow(1, "New York City", (*string)(nil)))

		cities, meta, err := repo.CitiesPage(ctx, NewCityFilter("", ""), 1, 10)
		require.NoError(t, err)
		require.Len(t, cities, 2)
		assert.Equal(t, "Antwerp", cities[0].Name)
		assert.Nil(t, cities[1].Description)
		assert.Equal(t, types.PaginationMetadata{TotalItemCount: 12, TotalPages: 2, PageSize: 10, CurrentPage: 1}, meta)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second page offsets by page size", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cities WHERE (name = $1)")).
			WithArgs("Paris").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY name ASC, id ASC LIMIT 3 OFFSET 3")).
			WithArgs("Paris").
			WillReturnRows(pgxmock.NewRows(cityColumns).AddRow(9, "Paris", (*string)(nil)))

		cities, meta, err := repo.CitiesPage(ctx, NewCityFilter(" Paris ", ""), 2, 3)
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, 2, meta.TotalPages)
		assert.Equal(t, 2, meta.CurrentPage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("page before the first is empty", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cities")).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

		cities, meta, err := repo.CitiesPage(ctx, NewCityFilter("", ""), 0, 10)
		require.NoError(t, err)
		assert.Empty(t, cities)
		assert.Equal(t, 3, meta.TotalItemCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("page past the last is empty", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cities")).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))

		cities, meta, err := repo.CitiesPage(ctx, NewCityFilter("", ""), 3, 10)
		require.NoError(t, err)
		assert.Empty(t, cities)
		assert.Equal(t, 2, meta.TotalPages)
		assert.Equal(t, 3, meta.CurrentPage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("huge page number does not wrap the offset", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cities")).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

		pageNumber := 1<<60 + 1
		cities, meta, err := repo.CitiesPage(ctx, NewCityFilter("", ""), pageNumber, 16)
		require.NoError(t, err)
		assert.Empty(t, cities)
		assert.Equal(t, types.PaginationMetadata{TotalItemCount: 1, TotalPages: 1, PageSize: 16, CurrentPage: pageNumber}, meta)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive page size is rejected", func(t *testing.T) {
		repo, _ := newMockRepository(t)

		_, _, err := repo.CitiesPage(ctx, NewCityFilter("", ""), 1, 0)
		assert.ErrorIs(t, err, types.ErrBadRequest)
	})

	t.Run("storage failure", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cities")).
			WillReturnError(errors.New("connection reset"))

		_, _, err := repo.CitiesPage(ctx, NewCityFilter("", ""), 1, 10)
		assert.ErrorIs(t, err, types.ErrStorage)
	})
}

func TestCityRepository_CityByID(t *testing.T) {
	ctx := context.Background()

	t.Run("missing city is nil without error", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(cityByIDQuery)).
			WithArgs(42).
			WillReturnRows(pgxmock.NewRows(cityColumns))

		city, err := repo.CityByID(ctx, 42, true)
		require.NoError(t, err)
		assert.Nil(t, city)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("points are loaded once and tracked", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 2, "Antwerp")
		expectPoints(mock, 2,
			types.PointOfInterest{ID: 4, CityID: 2, Name: "Cathedral"},
			types.PointOfInterest{ID: 5, CityID: 2, Name: "Antwerp Central Station"})

		city, err := repo.CityByID(ctx, 2, true)
		require.NoError(t, err)
		require.Len(t, city.PointsOfInterest, 2)

		again, err := repo.CityByID(ctx, 2, true)
		require.NoError(t, err)
		assert.Same(t, city, again)

		point, err := repo.PointOfInterest(ctx, 2, 5)
		require.NoError(t, err)
		assert.Same(t, city.PointsOfInterest[1], point)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tracked city without points loads collection on demand", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 1, "New York City")
		expectPoints(mock, 1, types.PointOfInterest{ID: 1, CityID: 1, Name: "Central Park"})

		bare, err := repo.CityByID(ctx, 1, false)
		require.NoError(t, err)
		assert.Empty(t, bare.PointsOfInterest)

		full, err := repo.CityByID(ctx, 1, true)
		require.NoError(t, err)
		assert.Same(t, bare, full)
		assert.Len(t, full.PointsOfInterest, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCityRepository_PointOfInterest(t *testing.T) {
	ctx := context.Background()

	t.Run("point of another city is absent", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(pointByCityAndIDQuery)).
			WithArgs(1, 4).
			WillReturnRows(pgxmock.NewRows(pointColumns))

		point, err := repo.PointOfInterest(ctx, 1, 4)
		require.NoError(t, err)
		assert.Nil(t, point)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tracked point is scoped to its city", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(pointByCityAndIDQuery)).
			WithArgs(2, 4).
			WillReturnRows(pgxmock.NewRows(pointColumns).AddRow(4, 2, "Cathedral", (*string)(nil)))

		point, err := repo.PointOfInterest(ctx, 2, 4)
		require.NoError(t, err)
		require.NotNil(t, point)

		other, err := repo.PointOfInterest(ctx, 1, 4)
		require.NoError(t, err)
		assert.Nil(t, other)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCityRepository_CityNameMatches(t *testing.T) {
	ctx := context.Background()

	t.Run("nil name never matches", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		ok, err := repo.CityNameMatches(ctx, nil, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exact name", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(cityNameMatchesQuery)).
			WithArgs(2, "Antwerp").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.CityNameMatches(ctx, strPtr("Antwerp"), 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestCityRepository_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing pending", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		ok, err := repo.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("added point receives id after commit", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 3, "Paris")

		point := &types.PointOfInterest{Name: "Louvre", Description: strPtr("The world's largest museum.")}
		require.NoError(t, repo.AddPointOfInterest(ctx, 3, point))
		assert.Equal(t, 3, point.CityID)
		assert.True(t, point.IsNew())

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(insertPointQuery)).
			WithArgs(3, "Louvre", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		ok, err := repo.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 7, point.ID)

		fetched, err := repo.PointOfInterest(ctx, 3, 7)
		require.NoError(t, err)
		assert.Same(t, point, fetched)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("edited point is updated", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(pointByCityAndIDQuery)).
			WithArgs(2, 4).
			WillReturnRows(pgxmock.NewRows(pointColumns).AddRow(4, 2, "Cathedral", (*string)(nil)))

		point, err := repo.PointOfInterest(ctx, 2, 4)
		require.NoError(t, err)
		point.Name = "Cathedral of Our Lady"

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE points_of_interest SET name = $1, description = $2 WHERE city_id = $3 AND id = $4")).
			WithArgs("Cathedral of Our Lady", pgxmock.AnyArg(), 2, 4).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		ok, err := repo.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Commit(ctx)
		require.NoError(t, err, "second commit has nothing left to write")
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("removed point is deleted", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 2, "Antwerp")
		expectPoints(mock, 2, types.PointOfInterest{ID: 4, CityID: 2, Name: "Cathedral"})

		city, err := repo.CityByID(ctx, 2, true)
		require.NoError(t, err)
		point := city.PointsOfInterest[0]

		require.NoError(t, repo.RemovePointOfInterest(ctx, 2, point))
		assert.Empty(t, city.PointsOfInterest)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(deletePointQuery)).
			WithArgs(4, 2).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		ok, err := repo.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		mock.ExpectQuery(regexp.QuoteMeta(pointByCityAndIDQuery)).
			WithArgs(2, 4).
			WillReturnRows(pgxmock.NewRows(pointColumns))
		gone, err := repo.PointOfInterest(ctx, 2, 4)
		require.NoError(t, err)
		assert.Nil(t, gone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("remove under the wrong city does nothing", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 1, "New York City")

		point := &types.PointOfInterest{ID: 4, CityID: 2, Name: "Cathedral"}
		require.NoError(t, repo.RemovePointOfInterest(ctx, 1, point))

		ok, err := repo.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed insert rolls back and leaves id unassigned", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 3, "Paris")

		point := &types.PointOfInterest{Name: "Louvre"}
		require.NoError(t, repo.AddPointOfInterest(ctx, 3, point))

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(insertPointQuery)).
			WithArgs(3, "Louvre", pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		ok, err := repo.Commit(ctx)
		assert.False(t, ok)
		assert.ErrorIs(t, err, types.ErrStorage)
		assert.True(t, point.IsNew())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("city deleted concurrently maps to not found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 3, "Paris")

		point := &types.PointOfInterest{Name: "Louvre"}
		require.NoError(t, repo.AddPointOfInterest(ctx, 3, point))

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(insertPointQuery)).
			WithArgs(3, "Louvre", pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23503", Message: "insert violates foreign key constraint"})
		mock.ExpectRollback()

		ok, err := repo.Commit(ctx)
		assert.False(t, ok)
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expectCity(mock, 3, "Paris")
		require.NoError(t, repo.AddPointOfInterest(ctx, 3, &types.PointOfInterest{Name: "Louvre"}))

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		ok, err := repo.Commit(ctx)
		assert.False(t, ok)
		assert.ErrorIs(t, err, types.ErrStorage)
	})
}
