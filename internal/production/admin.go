package production

import (
	"context"
	"database/sql"
	"strings"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"go.uber.org/zap"
)

func (s *Service) CreateLine(ctx context.Context, actor domain.Actor, line domain.ProductionLine) (domain.ProductionLine, error) {
	if err := requirePrivileged(actor); err != nil {
		return line, s.reject("create_line", actor, err)
	}
	line.Name = strings.TrimSpace(line.Name)
	line.Sector = domain.NormalizeSector(line.Sector)
	if err := validateLine(line); err != nil {
		return line, s.reject("create_line", actor, err)
	}
	id, err := sqlite.InsertLine(ctx, s.db, line)
	if err != nil {
		return line, s.reject("create_line", actor, err)
	}
	line.ID = id
	s.logger.Info("line created", zap.Int64("line_id", id), zap.String("name", line.Name), zap.String("sector", line.Sector))
	return line, nil
}

// UpdateLine edits a line in place. Records already on the line keep
// pointing at it; a sector change moves them to the new sector's users.
func (s *Service) UpdateLine(ctx context.Context, actor domain.Actor, line domain.ProductionLine) (domain.ProductionLine, error) {
	if err := requirePrivileged(actor); err != nil {
		return line, s.reject("update_line", actor, err)
	}
	line.Name = strings.TrimSpace(line.Name)
	line.Sector = domain.NormalizeSector(line.Sector)
	if err := validateLine(line); err != nil {
		return line, s.reject("update_line", actor, err)
	}
	if err := sqlite.UpdateLine(ctx, s.db, line); err != nil {
		return line, s.reject("update_line", actor, err)
	}
	s.logger.Info("line updated", zap.Int64("line_id", line.ID))
	return line, nil
}

// DeleteLine removes a line and, through the foreign keys, every record on
// it. Finalized records on the line block the delete.
func (s *Service) DeleteLine(ctx context.Context, actor domain.Actor, lineID int64) error {
	if err := requirePrivileged(actor); err != nil {
		return s.reject("delete_line", actor, err)
	}
	finalized := true
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := sqlite.GetLine(ctx, tx, lineID); err != nil {
			return err
		}
		locked, err := sqlite.ListRecords(ctx, tx, sqlite.RecordFilter{LineID: lineID, Finalized: &finalized, Limit: 1})
		if err != nil {
			return err
		}
		if len(locked) > 0 {
			return domain.Invalid("line_id", "line %d has finalized records; reopen or delete them first", lineID)
		}
		return sqlite.DeleteLine(ctx, tx, lineID)
	})
	if err != nil {
		return s.reject("delete_line", actor, err)
	}
	s.logger.Info("line deleted", zap.Int64("line_id", lineID))
	return nil
}

func (s *Service) GetLine(ctx context.Context, actor domain.Actor, lineID int64) (domain.ProductionLine, error) {
	line, err := sqlite.GetLine(ctx, s.db, lineID)
	if err != nil {
		return line, s.reject("get_line", actor, err)
	}
	if err := Authorize(actor, line); err != nil {
		return domain.ProductionLine{}, s.reject("get_line", actor, err)
	}
	return line, nil
}

// ListLines returns the lines the actor may record against.
func (s *Service) ListLines(ctx context.Context, actor domain.Actor) ([]domain.ProductionLine, error) {
	lines, err := sqlite.ListLines(ctx, s.db, VisibleSectors(actor))
	if err != nil {
		return nil, err
	}
	return nonNil(lines), nil
}

func (s *Service) CreateUser(ctx context.Context, actor domain.Actor, username string, superuser bool) (domain.User, error) {
	u := domain.User{Username: strings.TrimSpace(username), Superuser: superuser, CreatedAt: s.stamp()}
	if err := requirePrivileged(actor); err != nil {
		return u, s.reject("create_user", actor, err)
	}
	if u.Username == "" {
		return u, s.reject("create_user", actor, domain.Invalid("username", "username is required"))
	}
	id, err := sqlite.InsertUser(ctx, s.db, u)
	if err != nil {
		return u, s.reject("create_user", actor, err)
	}
	u.ID = id
	s.logger.Info("user created", zap.Int64("user_id", id), zap.String("username", u.Username), zap.Bool("superuser", superuser))
	return u, nil
}

// GrantSector lets the user create and edit records on the sector's lines.
// Granting an existing permission is a no-op.
func (s *Service) GrantSector(ctx context.Context, actor domain.Actor, userID int64, sector string) error {
	p := domain.SectorPermission{UserID: userID, Sector: domain.NormalizeSector(sector)}
	if err := requirePrivileged(actor); err != nil {
		return s.reject("grant_sector", actor, err)
	}
	if p.Sector == "" {
		return s.reject("grant_sector", actor, domain.Invalid("sector", "sector is required"))
	}
	if err := sqlite.GrantSector(ctx, s.db, p); err != nil {
		return s.reject("grant_sector", actor, err)
	}
	s.logger.Info("sector granted", zap.Int64("user_id", userID), zap.String("sector", p.Sector), zap.Int64("actor_id", actor.UserID))
	return nil
}

func (s *Service) RevokeSector(ctx context.Context, actor domain.Actor, userID int64, sector string) error {
	p := domain.SectorPermission{UserID: userID, Sector: domain.NormalizeSector(sector)}
	if err := requirePrivileged(actor); err != nil {
		return s.reject("revoke_sector", actor, err)
	}
	if err := sqlite.RevokeSector(ctx, s.db, p); err != nil {
		return s.reject("revoke_sector", actor, err)
	}
	s.logger.Info("sector revoked", zap.Int64("user_id", userID), zap.String("sector", p.Sector), zap.Int64("actor_id", actor.UserID))
	return nil
}
