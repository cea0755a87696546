package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/dnajar2/calling-crm-s-and-l/internal/identity"
)

// Client is a canonical person record. Email and phone are stored in
// normalized form only; empty values are stored as NULL so the partial
// uniqueness indexes ignore them.
type Client struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const clientCols = `id, user_id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at, updated_at`

// Resolve finds the owner's client matching the normalized email (first) or
// phone, creating one when neither matches. Two concurrent resolutions for
// the same identity yield exactly one row: the insert races on the partial
// unique indexes and the loser re-fetches the winner's row.
func (s *Store) Resolve(userID, name, email, phone string) (*Client, error) {
	name = identity.NormalizeName(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	email = identity.NormalizeEmail(email)
	phone = identity.NormalizePhone(phone)

	if email != "" {
		if c, err := s.findClientBy(userID, "email", email); err == nil {
			return c, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if phone != "" {
		if c, err := s.findClientBy(userID, "phone", phone); err == nil {
			return c, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	c, err := s.insertClient(userID, name, email, phone)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, err
	}

	// Lost the insert race: the identity now exists, fetch it.
	if email != "" {
		if c, err := s.findClientBy(userID, "email", email); err == nil {
			return c, nil
		}
	}
	if phone != "" {
		if c, err := s.findClientBy(userID, "phone", phone); err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("resolve client: %w", ErrConflict)
}

// CreateClient inserts a client with normalized contact fields.
func (s *Store) CreateClient(userID, name, email, phone string) (*Client, error) {
	name = identity.NormalizeName(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	return s.insertClient(userID, name, identity.NormalizeEmail(email), identity.NormalizePhone(phone))
}

func (s *Store) insertClient(userID, name, email, phone string) (*Client, error) {
	now := utc(time.Now())
	c := &Client{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Email:     email,
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO clients (id, user_id, name, email, phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (s *Store) findClientBy(userID, column, value string) (*Client, error) {
	// column is one of the fixed literals "email"/"phone", never user input
	return scanClient(s.db.QueryRow(
		`SELECT `+clientCols+` FROM clients WHERE user_id = ? AND `+column+` = ?`, userID, value))
}

// GetClient fetches a client by ID within the user's tenant scope.
func (s *Store) GetClient(userID, id string) (*Client, error) {
	return scanClient(s.db.QueryRow(
		`SELECT `+clientCols+` FROM clients WHERE id = ? AND user_id = ?`, id, userID))
}

// ListClients returns the user's clients ordered by name.
func (s *Store) ListClients(userID string) ([]*Client, error) {
	rows, err := s.db.Query(
		`SELECT `+clientCols+` FROM clients WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// UpdateClient updates name/email/phone, normalizing contact fields. Empty
// arguments leave the existing value untouched.
func (s *Store) UpdateClient(userID, id, name, email, phone string) (*Client, error) {
	c, err := s.GetClient(userID, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		c.Name = identity.NormalizeName(name)
	}
	if email != "" {
		c.Email = identity.NormalizeEmail(email)
	}
	if phone != "" {
		c.Phone = identity.NormalizePhone(phone)
	}
	c.UpdatedAt = utc(time.Now())
	_, err = s.db.Exec(
		`UPDATE clients SET name = ?, email = ?, phone = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), c.UpdatedAt, c.ID, userID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update client: %w", err)
	}
	return c, nil
}

// DeleteClient deletes a client and cascades to their events.
func (s *Store) DeleteClient(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM clients WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanClient(row *sql.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}
