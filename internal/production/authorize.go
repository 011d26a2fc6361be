package production

import (
	"context"
	"fmt"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"
)

// SystemActor is used by operator tooling (migrations, the CLI bootstrap).
var SystemActor = domain.Actor{Username: "system", Privileged: true}

// LoadActor resolves a user and the sectors they may record against.
func (s *Service) LoadActor(ctx context.Context, userID int64) (domain.Actor, error) {
	u, err := sqlite.GetUser(ctx, s.db, userID)
	if err != nil {
		return domain.Actor{}, err
	}
	sectors, err := sqlite.ListUserSectors(ctx, s.db, userID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("load sectors for user %d: %w", userID, err)
	}
	return domain.Actor{
		UserID:     u.ID,
		Username:   u.Username,
		Privileged: u.Superuser,
		Sectors:    sectors,
	}, nil
}

// Authorize allows privileged actors everywhere and everyone else only on
// lines whose sector they were granted. Lines without a sector are
// privileged-only.
func Authorize(actor domain.Actor, line domain.ProductionLine) error {
	if actor.Privileged {
		return nil
	}
	if actor.HasSector(line.Sector) {
		return nil
	}
	return fmt.Errorf("user %q on line %q (sector %q): %w", actor.Username, line.Name, line.Sector, domain.ErrUnauthorized)
}

func requirePrivileged(actor domain.Actor) error {
	if actor.Privileged {
		return nil
	}
	return fmt.Errorf("user %q is not an administrator: %w", actor.Username, domain.ErrUnauthorized)
}

// VisibleSectors is the sector restriction for listings and reports; nil
// means all.
func VisibleSectors(actor domain.Actor) []string {
	if actor.Privileged {
		return nil
	}
	if actor.Sectors == nil {
		return []string{}
	}
	return actor.Sectors
}
