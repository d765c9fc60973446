package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// ModelRepo persists and loads model versions.
type ModelRepo struct{ Pool PgxPool }

// NewModelRepo constructs a ModelRepo with the given pool.
func NewModelRepo(p PgxPool) *ModelRepo { return &ModelRepo{Pool: p} }

// Latest returns the most recently seeded model version, or ErrUnavailable
// when none has been seeded yet.
func (r *ModelRepo) Latest(ctx domain.Context) (domain.ModelVersion, error) {
	tracer := otel.Tracer("repo.models")
	ctx, span := tracer.Start(ctx, "models.Latest")
	defer span.End()
	q := `SELECT id, name, weights_ref, created_at FROM model_versions ORDER BY created_at DESC, id DESC LIMIT 1`
	var m domain.ModelVersion
	err := r.Pool.QueryRow(ctx, q).Scan(&m.ID, &m.Name, &m.WeightsRef, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModelVersion{}, fmt.Errorf("op=model.latest: no model seeded: %w", domain.ErrUnavailable)
		}
		return domain.ModelVersion{}, fmt.Errorf("op=model.latest: %w", err)
	}
	return m, nil
}

// Seed registers a model version. Names are unique; re-seeding an existing
// name refreshes its weights reference and timestamp so it becomes the
// latest again.
func (r *ModelRepo) Seed(ctx domain.Context, name, weightsRef string) (domain.ModelVersion, error) {
	tracer := otel.Tracer("repo.models")
	ctx, span := tracer.Start(ctx, "models.Seed")
	defer span.End()
	q := `INSERT INTO model_versions (name, weights_ref, created_at) VALUES ($1,$2,$3)
		ON CONFLICT (name) DO UPDATE SET weights_ref = EXCLUDED.weights_ref, created_at = EXCLUDED.created_at
		RETURNING id`
	m := domain.ModelVersion{Name: name, WeightsRef: weightsRef, CreatedAt: time.Now().UTC()}
	if err := r.Pool.QueryRow(ctx, q, name, weightsRef, m.CreatedAt).Scan(&m.ID); err != nil {
		return domain.ModelVersion{}, fmt.Errorf("op=model.seed: %w", err)
	}
	return m, nil
}
