package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/repository"
)

const createDomainsTable = `
CREATE TABLE IF NOT EXISTS domains (
	id {{serial}},
	name VARCHAR(255) NOT NULL UNIQUE,
	description VARCHAR(1024) NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);
`

const domainColumns = `id, name, description, active, created_at, updated_at`

type DomainRepository struct {
	db *DB
}

func NewDomainRepository(db *DB) repository.DomainRepository {
	return &DomainRepository{db: db}
}

func (r *DomainRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.db.ddl(createDomainsTable)); err != nil {
		return fmt.Errorf("create domains table: %w", err)
	}
	return nil
}

func (r *DomainRepository) Create(ctx context.Context, d *domain.Domain) (int64, error) {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	id, err := r.db.insert(ctx, `
INSERT INTO domains (name, description, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		d.Name,
		d.Description,
		d.Active,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert domain: %w", err)
	}
	d.ID = id
	return id, nil
}

func (r *DomainRepository) Update(ctx context.Context, d *domain.Domain) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, r.db.rebind(`
UPDATE domains
SET description = ?, active = ?, updated_at = ?
WHERE id = ?`),
		d.Description,
		d.Active,
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	return expectAffected(res, "domain")
}

func (r *DomainRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM domains WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	return expectAffected(res, "domain")
}

func (r *DomainRepository) Get(ctx context.Context, id int64) (*domain.Domain, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`
SELECT `+domainColumns+`
FROM domains
WHERE id = ?`),
		id,
	)
	return scanDomain(row)
}

func (r *DomainRepository) List(ctx context.Context) ([]domain.Domain, error) {
	return r.query(ctx, `
SELECT `+domainColumns+`
FROM domains
ORDER BY name`)
}

func (r *DomainRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Domain, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, r.db.rebind(`
SELECT `+domainColumns+`
FROM domains
WHERE id IN (`+placeholders(len(ids))+`)
ORDER BY name`), int64Args(ids)...)
}

func (r *DomainRepository) query(ctx context.Context, query string, args ...any) ([]domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return domains, nil
}

func scanDomain(row scanner) (*domain.Domain, error) {
	var d domain.Domain
	if err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("domain %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	return &d, nil
}
