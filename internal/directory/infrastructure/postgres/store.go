package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Sabari-Jazz/moose/internal/directory"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store reads users, site grants and push tokens.
type Store struct {
	db          DBTX
	usersTable  string
	grantsTable string
	tokensTable string
}

// NewStore constructs a store on the default tables.
func NewStore(db DBTX) *Store {
	return &Store{
		db:          db,
		usersTable:  "users",
		grantsTable: "user_sites",
		tokensTable: "user_push_tokens",
	}
}

// GetUser returns nil when the user is unknown.
func (s *Store) GetUser(ctx context.Context, userID string) (*directory.Recipient, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("directory store: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, email, escalation_email
FROM %s
WHERE id = $1
LIMIT 1`, s.usersTable)

	recipient, err := scanRecipient(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return recipient, nil
}

// ListSiteUsers returns users granted the site.
func (s *Store) ListSiteUsers(ctx context.Context, siteID string) ([]directory.Recipient, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("directory store: nil db")
	}
	query := fmt.Sprintf(`
SELECT u.id, u.name, u.email, u.escalation_email
FROM %s u
JOIN %s g ON g.user_id = u.id
WHERE g.site_id = $1
ORDER BY u.id ASC`, s.usersTable, s.grantsTable)

	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Recipient
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PushTokens returns the tokens of each user.
func (s *Store) PushTokens(ctx context.Context, userIDs []string) (map[string][]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("directory store: nil db")
	}
	result := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`
SELECT user_id, token
FROM %s
WHERE user_id IN (%s)
ORDER BY user_id ASC, created_at ASC`, s.tokensTable, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID, token string
		if err := rows.Scan(&userID, &token); err != nil {
			return nil, err
		}
		result[userID] = append(result[userID], token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// HasSiteGrant reports whether a grant row exists.
func (s *Store) HasSiteGrant(ctx context.Context, userID, siteID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("directory store: nil db")
	}
	query := fmt.Sprintf(`
SELECT EXISTS (
	SELECT 1 FROM %s WHERE user_id = $1 AND site_id = $2
)`, s.grantsTable)
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, userID, siteID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipient(row rowScanner) (*directory.Recipient, error) {
	var (
		recipient  directory.Recipient
		name       sql.NullString
		email      sql.NullString
		escalation sql.NullString
	)
	if err := row.Scan(&recipient.UserID, &name, &email, &escalation); err != nil {
		return nil, err
	}
	recipient.Name = name.String
	recipient.Email = email.String
	recipient.EscalationContact = strings.TrimSpace(escalation.String)
	return &recipient, nil
}
