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

const createMailboxesTable = `
CREATE TABLE IF NOT EXISTS mailboxes (
	id {{serial}},
	username VARCHAR(255) NOT NULL UNIQUE,
	domain_id BIGINT NOT NULL,
	name VARCHAR(255) NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL,
	FOREIGN KEY (domain_id) REFERENCES domains(id) ON DELETE CASCADE
);
`

const createMailboxesDomainIndex = `CREATE INDEX IF NOT EXISTS idx_mailboxes_domain_id ON mailboxes(domain_id);`

const mailboxSelect = `
SELECT m.id, m.username, m.domain_id, d.name, m.name, m.active, m.created_at, m.updated_at
FROM mailboxes m
JOIN domains d ON d.id = m.domain_id`

type MailboxRepository struct {
	db *DB
}

func NewMailboxRepository(db *DB) repository.MailboxRepository {
	return &MailboxRepository{db: db}
}

func (r *MailboxRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.db.ddl(createMailboxesTable)); err != nil {
		return fmt.Errorf("create mailboxes table: %w", err)
	}
	// mysql indexes foreign key columns itself and lacks CREATE INDEX IF NOT EXISTS
	if r.db.Driver == DriverMySQL {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, createMailboxesDomainIndex); err != nil {
		return fmt.Errorf("create mailboxes index: %w", err)
	}
	return nil
}

func (r *MailboxRepository) Create(ctx context.Context, m *domain.Mailbox) (int64, error) {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	id, err := r.db.insert(ctx, `
INSERT INTO mailboxes (username, domain_id, name, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		m.Username,
		m.DomainID,
		m.Name,
		m.Active,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert mailbox: %w", err)
	}
	m.ID = id
	return id, nil
}

func (r *MailboxRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM mailboxes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete mailbox: %w", err)
	}
	return expectAffected(res, "mailbox")
}

func (r *MailboxRepository) Get(ctx context.Context, id int64) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(mailboxSelect+`
WHERE m.id = ?`), id)
	return scanMailbox(row)
}

func (r *MailboxRepository) GetByUsername(ctx context.Context, username string) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(mailboxSelect+`
WHERE m.username = ?`), username)
	return scanMailbox(row)
}

func (r *MailboxRepository) List(ctx context.Context) ([]domain.Mailbox, error) {
	return r.query(ctx, mailboxSelect+`
ORDER BY d.name, m.username`)
}

func (r *MailboxRepository) ListByDomains(ctx context.Context, domainIDs []int64) ([]domain.Mailbox, error) {
	if len(domainIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, r.db.rebind(mailboxSelect+`
WHERE m.domain_id IN (`+placeholders(len(domainIDs))+`)
ORDER BY d.name, m.username`), int64Args(domainIDs)...)
}

func (r *MailboxRepository) query(ctx context.Context, query string, args ...any) ([]domain.Mailbox, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []domain.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mailboxes: %w", err)
	}
	return mailboxes, nil
}

func scanMailbox(row scanner) (*domain.Mailbox, error) {
	var m domain.Mailbox
	if err := row.Scan(
		&m.ID,
		&m.Username,
		&m.DomainID,
		&m.DomainName,
		&m.Name,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mailbox %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan mailbox: %w", err)
	}
	return &m, nil
}
