package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/repository"
)

var (
	domainNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)
	localPartPattern  = regexp.MustCompile(`^[a-z0-9]([a-z0-9._+-]{0,62}[a-z0-9])?$`)
)

// Overview is the slice of the directory a user is allowed to see.
type Overview struct {
	Domains   []domain.Domain
	Mailboxes []domain.Mailbox
}

// DirectoryService manages domains, mailboxes and domain admin scoping.
type DirectoryService interface {
	ListDomains(ctx context.Context) ([]domain.Domain, error)
	GetDomain(ctx context.Context, id int64) (*domain.Domain, error)
	CreateDomain(ctx context.Context, name, description string) (*domain.Domain, error)
	UpdateDomain(ctx context.Context, id int64, description *string, active *bool) (*domain.Domain, error)
	DeleteDomain(ctx context.Context, id int64) error

	ListMailboxes(ctx context.Context) ([]domain.Mailbox, error)
	ListMailboxesByDomains(ctx context.Context, domainIDs []int64) ([]domain.Mailbox, error)
	GetMailbox(ctx context.Context, id int64) (*domain.Mailbox, error)
	GetMailboxByUsername(ctx context.Context, username string) (*domain.Mailbox, error)
	CreateMailbox(ctx context.Context, username string, domainID int64, name string) (*domain.Mailbox, error)
	DeleteMailbox(ctx context.Context, id int64) error

	AssignDomainAdmin(ctx context.Context, userID, domainID int64) error
	RevokeDomainAdmin(ctx context.Context, userID, domainID int64) error
	DomainsForAdmin(ctx context.Context, userID int64) ([]domain.Domain, error)

	// VisibleTo returns what the given user may list, scoped by role.
	VisibleTo(ctx context.Context, user *domain.User) (*Overview, error)
	// CanManageDomain reports whether user may create or delete mailboxes in the domain.
	CanManageDomain(ctx context.Context, user *domain.User, domainID int64) (bool, error)
}

type directoryService struct {
	users     repository.UserRepository
	domains   repository.DomainRepository
	mailboxes repository.MailboxRepository
	admins    repository.DomainAdminRepository
}

func NewDirectoryService(
	users repository.UserRepository,
	domains repository.DomainRepository,
	mailboxes repository.MailboxRepository,
	admins repository.DomainAdminRepository,
) DirectoryService {
	return &directoryService{
		users:     users,
		domains:   domains,
		mailboxes: mailboxes,
		admins:    admins,
	}
}

func (s *directoryService) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	return s.domains.List(ctx)
}

func (s *directoryService) GetDomain(ctx context.Context, id int64) (*domain.Domain, error) {
	d, err := s.domains.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}

func (s *directoryService) CreateDomain(ctx context.Context, name, description string) (*domain.Domain, error) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if name == "" {
		return nil, invalidf("domain name is required")
	}
	if len(name) > 253 || !domainNamePattern.MatchString(name) {
		return nil, invalidf("%q is not a valid domain name", name)
	}

	d := &domain.Domain{
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
	}
	if _, err := s.domains.Create(ctx, d); err != nil {
		return nil, translate(err)
	}
	return d, nil
}

func (s *directoryService) UpdateDomain(ctx context.Context, id int64, description *string, active *bool) (*domain.Domain, error) {
	d, err := s.domains.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if description != nil {
		d.Description = strings.TrimSpace(*description)
	}
	if active != nil {
		d.Active = *active
	}
	if err := s.domains.Update(ctx, d); err != nil {
		return nil, translate(err)
	}
	return d, nil
}

func (s *directoryService) DeleteDomain(ctx context.Context, id int64) error {
	return translate(s.domains.Delete(ctx, id))
}

func (s *directoryService) ListMailboxes(ctx context.Context) ([]domain.Mailbox, error) {
	return s.mailboxes.List(ctx)
}

func (s *directoryService) ListMailboxesByDomains(ctx context.Context, domainIDs []int64) ([]domain.Mailbox, error) {
	return s.mailboxes.ListByDomains(ctx, domainIDs)
}

func (s *directoryService) GetMailbox(ctx context.Context, id int64) (*domain.Mailbox, error) {
	m, err := s.mailboxes.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (s *directoryService) GetMailboxByUsername(ctx context.Context, username string) (*domain.Mailbox, error) {
	m, err := s.mailboxes.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (s *directoryService) CreateMailbox(ctx context.Context, username string, domainID int64, name string) (*domain.Mailbox, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, invalidf("mailbox username is required")
	}
	if !localPartPattern.MatchString(username) {
		return nil, invalidf("%q is not a valid mailbox username", username)
	}

	d, err := s.domains.Get(ctx, domainID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: domain %d", ErrNotFound, domainID)
		}
		return nil, err
	}

	m := &domain.Mailbox{
		Username:   username,
		DomainID:   d.ID,
		DomainName: d.Name,
		Name:       strings.TrimSpace(name),
		Active:     true,
	}
	if _, err := s.mailboxes.Create(ctx, m); err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (s *directoryService) DeleteMailbox(ctx context.Context, id int64) error {
	return translate(s.mailboxes.Delete(ctx, id))
}

func (s *directoryService) AssignDomainAdmin(ctx context.Context, userID, domainID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return translate(err)
	}
	if !user.IsDomainAdmin() {
		return invalidf("user %q does not have the %s role", user.Username, domain.RoleDomainAdmin)
	}
	if _, err := s.domains.Get(ctx, domainID); err != nil {
		return translate(err)
	}
	return translate(s.admins.Assign(ctx, userID, domainID))
}

func (s *directoryService) RevokeDomainAdmin(ctx context.Context, userID, domainID int64) error {
	return translate(s.admins.Revoke(ctx, userID, domainID))
}

func (s *directoryService) DomainsForAdmin(ctx context.Context, userID int64) ([]domain.Domain, error) {
	ids, err := s.admins.DomainIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.domains.ListByIDs(ctx, ids)
}

func (s *directoryService) VisibleTo(ctx context.Context, user *domain.User) (*Overview, error) {
	if user == nil {
		return nil, ErrForbidden
	}

	switch user.Role {
	case domain.RoleAdmin:
		domains, err := s.domains.List(ctx)
		if err != nil {
			return nil, err
		}
		mailboxes, err := s.mailboxes.List(ctx)
		if err != nil {
			return nil, err
		}
		return &Overview{Domains: domains, Mailboxes: mailboxes}, nil

	case domain.RoleDomainAdmin:
		domains, err := s.DomainsForAdmin(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(domains))
		for i := range domains {
			ids[i] = domains[i].ID
		}
		mailboxes, err := s.mailboxes.ListByDomains(ctx, ids)
		if err != nil {
			return nil, err
		}
		return &Overview{Domains: domains, Mailboxes: mailboxes}, nil

	default:
		// a user's mailbox shares its username; the namespace is flat
		m, err := s.mailboxes.GetByUsername(ctx, strings.ToLower(user.Username))
		if errors.Is(err, repository.ErrNotFound) {
			return &Overview{}, nil
		}
		if err != nil {
			return nil, err
		}
		d, err := s.domains.Get(ctx, m.DomainID)
		if err != nil {
			return nil, translate(err)
		}
		return &Overview{Domains: []domain.Domain{*d}, Mailboxes: []domain.Mailbox{*m}}, nil
	}
}

func (s *directoryService) CanManageDomain(ctx context.Context, user *domain.User, domainID int64) (bool, error) {
	if user == nil {
		return false, nil
	}
	switch user.Role {
	case domain.RoleAdmin:
		return true, nil
	case domain.RoleDomainAdmin:
		ids, err := s.admins.DomainIDs(ctx, user.ID)
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if id == domainID {
				return true, nil
			}
		}
	}
	return false, nil
}
