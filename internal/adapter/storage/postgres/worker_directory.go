package postgres

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	pgdb "github.com/fieldops/dispatch/config/storage/postgresql"
	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
)

var workerColumns = []string{
	"id", "name", "role", "phone", "status", "availability", "skills",
	"performance_score", "location_lat", "location_lng", "last_seen",
}

type workerDirectory struct {
	db  *pgdb.DB
	log *zap.Logger
}

// NewWorkerDirectory creates the postgres-backed reporter directory.
func NewWorkerDirectory(db *pgdb.DB, log *zap.Logger) port.WorkerDirectory {
	return &workerDirectory{
		db:  db,
		log: log,
	}
}

func (d *workerDirectory) GetByID(ctx context.Context, id string) (*domain.Worker, error) {
	return d.getOne(ctx, sq.Eq{"id": id})
}

func (d *workerDirectory) GetByPhone(ctx context.Context, phone string) (*domain.Worker, error) {
	return d.getOne(ctx, sq.Eq{"phone": phone})
}

func (d *workerDirectory) getOne(ctx context.Context, pred any) (*domain.Worker, error) {
	query, args, err := d.db.QueryBuilder.Select(workerColumns...).
		From("workers").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	worker, err := scanWorker(d.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWorkerNotFound
	}
	return worker, err
}

func (d *workerDirectory) ListCandidates(ctx context.Context) ([]*domain.Worker, error) {
	return d.list(ctx, sq.And{
		sq.Eq{"status": domain.WorkerStatusActive},
		sq.Eq{"availability": []domain.WorkerAvailability{
			domain.AvailabilityAvailable, domain.AvailabilityBusy,
		}},
	})
}

func (d *workerDirectory) ListActive(ctx context.Context) ([]*domain.Worker, error) {
	return d.list(ctx, sq.Eq{"status": domain.WorkerStatusActive})
}

func (d *workerDirectory) UpdatePerformanceScore(ctx context.Context, id string, score float64) error {
	query, args, err := d.db.QueryBuilder.Update("workers").
		Set("performance_score", score).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := d.db.Exec(ctx, query, args...)
	if err != nil {
		d.log.Error("Failed to update performance score",
			zap.String("worker_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWorkerNotFound
	}
	return nil
}

func (d *workerDirectory) list(ctx context.Context, pred any) ([]*domain.Worker, error) {
	query, args, err := d.db.QueryBuilder.Select(workerColumns...).
		From("workers").
		Where(pred).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []*domain.Worker
	for rows.Next() {
		worker, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	return workers, rows.Err()
}

func scanWorker(row pgx.Row) (*domain.Worker, error) {
	var (
		w        domain.Worker
		lat, lng *float64
	)
	err := row.Scan(
		&w.ID, &w.Name, &w.Role, &w.Phone, &w.Status, &w.Availability,
		&w.Skills, &w.PerformanceScore, &lat, &lng, &w.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		w.Location = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return &w, nil
}
