package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/comptoir/auth"
	"github.com/hazyhaar/comptoir/idgen"
	"github.com/hazyhaar/comptoir/storedb"
)

// accountService owns staff account operations against the security store.
type accountService struct {
	db     *sql.DB
	hasher *auth.BcryptHasher
}

// authenticate verifies a username/password pair and returns session claims.
func (s *accountService) authenticate(ctx context.Context, username, password string) (*auth.Claims, error) {
	var id, group, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_name, password_hash FROM accounts WHERE username = ? AND status = 'active'`, username).
		Scan(&id, &group, &hash)
	if err != nil {
		return nil, fmt.Errorf("account not found")
	}
	if !auth.Verify(hash, password) {
		return nil, fmt.Errorf("wrong password")
	}
	return &auth.Claims{
		AccountID: id,
		Username:  username,
		Group:     group,
	}, nil
}

func (s *accountService) list(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, display_name, group_name, status, created_at FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []map[string]any{}
	for rows.Next() {
		var id, username, displayName, group, status string
		var createdAt int64
		if err := rows.Scan(&id, &username, &displayName, &group, &status, &createdAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, map[string]any{
			"id": id, "username": username, "display_name": displayName,
			"group": group, "status": status, "created_at": createdAt,
		})
	}
	return accounts, rows.Err()
}

// create inserts a staff account. The group membership check and the insert
// run in one transaction so a concurrent group removal cannot leave an
// account pointing at a missing group.
func (s *accountService) create(ctx context.Context, username, displayName, password, group string) (map[string]string, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("identifiant et mot de passe requis")
	}
	if group == "" {
		group = "caissiers"
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	id := idgen.Prefixed("acc_", idgen.Default)()
	err = storedb.RunInTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM access_groups WHERE name = ?`, group).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("groupe inconnu: %s", group)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, username, display_name, password_hash, group_name, status, created_at)
			VALUES (?, ?, ?, ?, ?, 'active', ?)`,
			id, username, displayName, hash, group, time.Now().Unix())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creation compte: %w", err)
	}
	return map[string]string{"id": id, "username": username, "group": group}, nil
}

func (s *accountService) disable(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET status = 'disabled' WHERE id = ?`, accountID)
	return err
}
