package sqlite

import (
	"context"
	"fmt"

	"prodtrack/internal/domain"
)

func InsertUser(ctx context.Context, q Querier, u domain.User) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO users (username, is_superuser) VALUES (?, ?)`,
		u.Username, u.Superuser,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.Invalid("username", "username %q is taken", u.Username)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func GetUser(ctx context.Context, q Querier, id int64) (domain.User, error) {
	var u domain.User
	err := q.QueryRowContext(ctx,
		`SELECT id, username, is_superuser, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Superuser, &u.CreatedAt)
	return u, notFound("user", id, err)
}

func ListUserSectors(ctx context.Context, q Querier, userID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT sector FROM sector_permissions WHERE user_id = ? ORDER BY sector`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sectors := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

// GrantSector is idempotent: granting an existing permission is a no-op.
func GrantSector(ctx context.Context, q Querier, p domain.SectorPermission) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO sector_permissions (user_id, sector) VALUES (?, ?)`,
		p.UserID, p.Sector,
	)
	if err != nil && isForeignKeyViolation(err) {
		return fmt.Errorf("user %d: %w", p.UserID, domain.ErrNotFound)
	}
	return err
}

func RevokeSector(ctx context.Context, q Querier, p domain.SectorPermission) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM sector_permissions WHERE user_id = ? AND sector = ?`, p.UserID, p.Sector)
	return err
}
