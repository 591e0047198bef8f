// Package directory resolves who can see a site and how to reach them.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned for unknown users.
var ErrNotFound = errors.New("directory: not found")

// Recipient is a user who can be notified about a site.
type Recipient struct {
	UserID            string
	Name              string
	Email             string
	EscalationContact string
	PushTokens        []string
	Admin             bool
}

// CanEscalate reports whether the recipient is eligible for incidents.
func (r Recipient) CanEscalate() bool {
	return !r.Admin && strings.TrimSpace(r.EscalationContact) != ""
}

// Store is the persistence boundary for users and their site grants.
type Store interface {
	GetUser(ctx context.Context, userID string) (*Recipient, error)
	ListSiteUsers(ctx context.Context, siteID string) ([]Recipient, error)
	PushTokens(ctx context.Context, userIDs []string) (map[string][]string, error)
	HasSiteGrant(ctx context.Context, userID, siteID string) (bool, error)
}

// Directory answers visibility and contact questions. The configured admin
// user sees every site.
type Directory struct {
	store       Store
	adminUserID string
}

// New constructs a directory.
func New(store Store, adminUserID string) (*Directory, error) {
	if store == nil {
		return nil, errors.New("directory: nil store")
	}
	return &Directory{store: store, adminUserID: strings.TrimSpace(adminUserID)}, nil
}

// AdminUserID returns the configured admin id.
func (d *Directory) AdminUserID() string {
	if d == nil {
		return ""
	}
	return d.adminUserID
}

// RecipientsForSite lists every user with access to the site, the admin
// included, each with their push tokens. Ordered by user id.
func (d *Directory) RecipientsForSite(ctx context.Context, siteID string) ([]Recipient, error) {
	if d == nil {
		return nil, errors.New("directory: nil directory")
	}
	users, err := d.store.ListSiteUsers(ctx, siteID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Recipient, len(users)+1)
	for _, user := range users {
		if user.UserID == "" {
			continue
		}
		byID[user.UserID] = user
	}
	if d.adminUserID != "" {
		if _, ok := byID[d.adminUserID]; !ok {
			admin, err := d.store.GetUser(ctx, d.adminUserID)
			if err != nil {
				return nil, err
			}
			if admin == nil {
				admin = &Recipient{UserID: d.adminUserID}
			}
			byID[d.adminUserID] = *admin
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	tokens, err := d.store.PushTokens(ctx, ids)
	if err != nil {
		return nil, err
	}

	recipients := make([]Recipient, 0, len(ids))
	for _, id := range ids {
		recipient := byID[id]
		recipient.Admin = id == d.adminUserID
		recipient.PushTokens = tokens[id]
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// Recipient loads one user with push tokens.
func (d *Directory) Recipient(ctx context.Context, userID string) (*Recipient, error) {
	if d == nil {
		return nil, errors.New("directory: nil directory")
	}
	user, err := d.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	tokens, err := d.store.PushTokens(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	user.PushTokens = tokens[userID]
	user.Admin = userID == d.adminUserID
	return user, nil
}

// HasSiteAccess implements auth.SiteAccessChecker.
func (d *Directory) HasSiteAccess(ctx context.Context, userID, siteID string) (bool, error) {
	if d == nil {
		return false, errors.New("directory: nil directory")
	}
	if userID == "" || siteID == "" {
		return false, nil
	}
	if userID == d.adminUserID {
		return true, nil
	}
	return d.store.HasSiteGrant(ctx, userID, siteID)
}

// UniqueTokens flattens and deduplicates push tokens, preserving first-seen order.
func UniqueTokens(recipients []Recipient) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, recipient := range recipients {
		for _, token := range recipient.PushTokens {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			tokens = append(tokens, token)
		}
	}
	return tokens
}
