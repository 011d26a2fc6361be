package sqlite

import (
	"context"
	"fmt"

	"prodtrack/internal/domain"
)

func InsertLine(ctx context.Context, q Querier, line domain.ProductionLine) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO production_lines (name, sector, nominal_capacity) VALUES (?, ?, ?)`,
		line.Name, line.Sector, line.NominalCapacity,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func UpdateLine(ctx context.Context, q Querier, line domain.ProductionLine) error {
	res, err := q.ExecContext(ctx,
		`UPDATE production_lines SET name = ?, sector = ?, nominal_capacity = ? WHERE id = ?`,
		line.Name, line.Sector, line.NominalCapacity, line.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "production line", line.ID)
}

// DeleteLine removes the line and, through the foreign keys, every record
// taken on it.
func DeleteLine(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM production_lines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "production line", id)
}

func GetLine(ctx context.Context, q Querier, id int64) (domain.ProductionLine, error) {
	var line domain.ProductionLine
	err := q.QueryRowContext(ctx,
		`SELECT id, name, sector, nominal_capacity FROM production_lines WHERE id = ?`, id,
	).Scan(&line.ID, &line.Name, &line.Sector, &line.NominalCapacity)
	return line, notFound("production line", id, err)
}

// ListLines returns lines ordered by name. A nil sectors slice lists every
// line; otherwise only lines in one of the given sectors.
func ListLines(ctx context.Context, q Querier, sectors []string) ([]domain.ProductionLine, error) {
	query := `SELECT id, name, sector, nominal_capacity FROM production_lines`
	var args []any
	if sectors != nil {
		if len(sectors) == 0 {
			return nil, nil
		}
		query += ` WHERE sector IN (` + placeholders(len(sectors)) + `)`
		for _, s := range sectors {
			args = append(args, s)
		}
	}
	query += ` ORDER BY name, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.ProductionLine
	for rows.Next() {
		var line domain.ProductionLine
		if err := rows.Scan(&line.ID, &line.Name, &line.Sector, &line.NominalCapacity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffected, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
