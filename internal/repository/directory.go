package repository

import (
	"context"

	"phreakmail-web/internal/domain"
)

// DomainRepository exposes persistence operations for mail domains.
type DomainRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, d *domain.Domain) (int64, error)
	Update(ctx context.Context, d *domain.Domain) error
	// Delete removes the domain and, through the foreign key, its mailboxes.
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Domain, error)
	List(ctx context.Context) ([]domain.Domain, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Domain, error)
}

// MailboxRepository exposes persistence operations for mailboxes.
type MailboxRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, m *domain.Mailbox) (int64, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Mailbox, error)
	GetByUsername(ctx context.Context, username string) (*domain.Mailbox, error)
	List(ctx context.Context) ([]domain.Mailbox, error)
	ListByDomains(ctx context.Context, domainIDs []int64) ([]domain.Mailbox, error)
}

// DomainAdminRepository tracks which domains a domain administrator manages.
type DomainAdminRepository interface {
	Init(ctx context.Context) error
	Assign(ctx context.Context, userID, domainID int64) error
	Revoke(ctx context.Context, userID, domainID int64) error
	RevokeAll(ctx context.Context, userID int64) error
	DomainIDs(ctx context.Context, userID int64) ([]int64, error)
}
