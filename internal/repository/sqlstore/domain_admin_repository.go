package sqlstore

import (
	"context"
	"fmt"

	"phreakmail-web/internal/repository"
)

const createDomainAdminsTable = `
CREATE TABLE IF NOT EXISTS domain_admins (
	user_id BIGINT NOT NULL,
	domain_id BIGINT NOT NULL,
	PRIMARY KEY (user_id, domain_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (domain_id) REFERENCES domains(id) ON DELETE CASCADE
);
`

type DomainAdminRepository struct {
	db *DB
}

func NewDomainAdminRepository(db *DB) repository.DomainAdminRepository {
	return &DomainAdminRepository{db: db}
}

func (r *DomainAdminRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDomainAdminsTable); err != nil {
		return fmt.Errorf("create domain_admins table: %w", err)
	}
	return nil
}

func (r *DomainAdminRepository) Assign(ctx context.Context, userID, domainID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
INSERT INTO domain_admins (user_id, domain_id)
VALUES (?, ?)`),
		userID,
		domainID,
	)
	if err != nil {
		return fmt.Errorf("assign domain admin: %w", classify(err))
	}
	return nil
}

func (r *DomainAdminRepository) Revoke(ctx context.Context, userID, domainID int64) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`
DELETE FROM domain_admins
WHERE user_id = ? AND domain_id = ?`),
		userID,
		domainID,
	)
	if err != nil {
		return fmt.Errorf("revoke domain admin: %w", err)
	}
	return expectAffected(res, "domain admin assignment")
}

func (r *DomainAdminRepository) RevokeAll(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, r.db.rebind(`
DELETE FROM domain_admins
WHERE user_id = ?`),
		userID,
	); err != nil {
		return fmt.Errorf("revoke domain admin assignments: %w", err)
	}
	return nil
}

func (r *DomainAdminRepository) DomainIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
SELECT domain_id
FROM domain_admins
WHERE user_id = ?
ORDER BY domain_id`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list domain admin assignments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan domain admin assignment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain admin assignments: %w", err)
	}
	return ids, nil
}
