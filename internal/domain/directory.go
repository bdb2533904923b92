package domain

import "time"

// Domain is an email routing namespace such as example.com.
type Domain struct {
	ID          int64
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Mailbox is a named destination inside a Domain. Username is unique across
// all domains, not per domain.
type Mailbox struct {
	ID         int64
	Username   string
	DomainID   int64
	DomainName string
	Name       string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Address returns the full mailbox address.
func (m Mailbox) Address() string {
	if m.DomainName == "" {
		return m.Username
	}
	return m.Username + "@" + m.DomainName
}
