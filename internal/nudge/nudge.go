// Package nudge reminds supervisors on Slack about production records left
// open past the allowed age.
package nudge

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// API is the subset of *slack.Client used for reminders.
type API interface {
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type StaleRecord struct {
	Record  domain.ProductionRecord
	Line    domain.ProductionLine
	AgeDays int
}

// StaleRecords DMs each supervisor the list of open records at least
// MaxAgeDays old. Without resolvable supervisors the list goes to ChannelID.
type StaleRecords struct {
	DB          *sql.DB
	API         API
	ChannelID   string
	Supervisors []string
	MaxAgeDays  int
	Logger      *zap.Logger
}

func (n *StaleRecords) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

// FindStale lists open records dated maxAgeDays or more before today,
// oldest first. A non-positive maxAgeDays finds nothing.
func FindStale(ctx context.Context, q sqlite.Querier, today time.Time, maxAgeDays int) ([]StaleRecord, error) {
	if maxAgeDays <= 0 {
		return nil, nil
	}
	today = domain.DateOf(today)
	open := false
	records, err := sqlite.ListRecords(ctx, q, sqlite.RecordFilter{
		To:        today.AddDate(0, 0, -maxAgeDays),
		Finalized: &open,
	})
	if err != nil {
		return nil, fmt.Errorf("list open records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	lines, err := sqlite.ListLines(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	lineByID := make(map[int64]domain.ProductionLine, len(lines))
	for _, l := range lines {
		lineByID[l.ID] = l
	}

	out := make([]StaleRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, StaleRecord{
			Record:  rec,
			Line:    lineByID[rec.LineID],
			AgeDays: int(today.Sub(rec.Date).Hours() / 24),
		})
	}
	slices.SortStableFunc(out, func(a, b StaleRecord) int {
		return a.Record.Date.Compare(b.Record.Date)
	})
	return out, nil
}

// Run sends the reminder for the records stale as of now and returns how
// many messages were posted.
func (n *StaleRecords) Run(ctx context.Context, now time.Time) (int, error) {
	log := n.logger()
	stale, err := FindStale(ctx, n.DB, now, n.MaxAgeDays)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		log.Debug("no stale open records")
		return 0, nil
	}
	msg := formatMessage(stale, n.MaxAgeDays)

	supervisorIDs, unresolved, err := resolveUserIDs(ctx, n.API, n.Supervisors)
	if err != nil {
		log.Warn("error resolving supervisors", zap.Error(err))
	}
	if len(unresolved) > 0 {
		log.Warn("unresolved supervisors", zap.Strings("names", unresolved))
	}

	if len(supervisorIDs) == 0 {
		if _, _, err := n.API.PostMessageContext(ctx, n.ChannelID, slack.MsgOptionText(msg, false)); err != nil {
			return 0, fmt.Errorf("post stale record reminder: %w", err)
		}
		log.Info("stale record reminder posted", zap.String("channel", n.ChannelID), zap.Int("records", len(stale)))
		return 1, nil
	}

	sent := 0
	for _, userID := range supervisorIDs {
		channel, _, _, err := n.API.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err != nil {
			log.Warn("error opening DM", zap.String("user", userID), zap.Error(err))
			continue
		}
		if _, _, err := n.API.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(msg, false)); err != nil {
			log.Warn("error sending reminder", zap.String("user", userID), zap.Error(err))
			continue
		}
		sent++
	}
	log.Info("stale record reminders sent", zap.Int("sent", sent), zap.Int("records", len(stale)))
	if sent == 0 {
		return 0, fmt.Errorf("no reminder delivered to %d supervisors", len(supervisorIDs))
	}
	return sent, nil
}

func (n *StaleRecords) RunScheduled(ctx context.Context, at time.Time) {
	if _, err := n.Run(ctx, at); err != nil {
		n.logger().Error("stale record reminder failed", zap.Error(err))
	}
}

func formatMessage(stale []StaleRecord, maxAgeDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lembrete: %d apontamento(s) em aberto ha %d dias ou mais. Confira os valores e finalize:\n",
		len(stale), maxAgeDays)
	for _, s := range stale {
		name := s.Line.Name
		if name == "" {
			name = fmt.Sprintf("linha %d", s.Record.LineID)
		}
		fmt.Fprintf(&b, "• %s, %s, turno %s (%d dias)\n",
			name, s.Record.Date.Format("02/01/2006"), s.Record.Shift.Label(), s.AgeDays)
	}
	return b.String()
}

// resolveUserIDs maps Slack user IDs and display names to IDs. Names that
// match no workspace user are returned separately.
func resolveUserIDs(ctx context.Context, api API, identifiers []string) ([]string, []string, error) {
	var ids []string
	var names []string
	for _, raw := range identifiers {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if isLikelySlackID(val) {
			ids = append(ids, val)
		} else {
			names = append(names, val)
		}
	}
	if len(names) == 0 {
		return uniqueStrings(ids), nil, nil
	}
	users, err := api.GetUsersContext(ctx)
	if err != nil {
		return uniqueStrings(ids), names, err
	}
	nameToID := make(map[string]string)
	for _, user := range users {
		for _, n := range []string{user.Name, user.RealName, user.Profile.DisplayName} {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				continue
			}
			if _, exists := nameToID[n]; !exists {
				nameToID[n] = user.ID
			}
		}
	}
	var unresolved []string
	for _, name := range names {
		if id, ok := nameToID[strings.ToLower(name)]; ok {
			ids = append(ids, id)
		} else {
			unresolved = append(unresolved, name)
		}
	}
	return uniqueStrings(ids), unresolved, nil
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func uniqueStrings(vals []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
