// Package slackbot posts record lock transitions and daily reports to a
// Slack channel.
package slackbot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/httpx"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// API is the subset of *slack.Client the notifier uses.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Slack rejects header blocks longer than this.
const maxHeaderRunes = 150

type Notifier struct {
	api       API
	channelID string
	logger    *zap.Logger
}

// NewClient connects to Slack through the shared outbound client, so timeout
// bounds every Slack call.
func NewClient(token string, timeout time.Duration) *slack.Client {
	return slack.New(token, slack.OptionHTTPClient(httpx.NewExternalClient(timeout)))
}

func NewWithAPI(api API, channelID string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: api, channelID: channelID, logger: logger}
}

func (n *Notifier) RecordFinalized(ctx context.Context, rec domain.ProductionRecord, line domain.ProductionLine, actor domain.Actor) error {
	summary := fmt.Sprintf("Apontamento finalizado: %s, %s, turno %s",
		line.Name, rec.Date.Format("02/01/2006"), rec.Shift.Label())
	fields := []*slack.TextBlockObject{
		mrkdwn(fmt.Sprintf("*Produzido*\n%d", rec.Produced)),
		mrkdwn(fmt.Sprintf("*Defeituoso*\n%d (%s%%)", rec.Defective, rec.DefectRatePct().StringFixed(2))),
		mrkdwn(fmt.Sprintf("*Tempo parado*\n%d min", rec.DowntimeMinutes)),
		mrkdwn(fmt.Sprintf("*Finalizado por*\n%s", actorName(actor))),
	}
	return n.post(ctx, rec.ID, summary,
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, truncateRunes(summary, maxHeaderRunes), false, false)),
		slack.NewSectionBlock(nil, fields, nil),
	)
}

func (n *Notifier) RecordReopened(ctx context.Context, rec domain.ProductionRecord, line domain.ProductionLine, actor domain.Actor) error {
	summary := fmt.Sprintf("Apontamento reaberto: %s, %s, turno %s (por %s)",
		line.Name, rec.Date.Format("02/01/2006"), rec.Shift.Label(), actorName(actor))
	return n.post(ctx, rec.ID, summary,
		slack.NewSectionBlock(mrkdwn(":unlock: "+summary), nil, nil),
	)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func (n *Notifier) post(ctx context.Context, recordID int64, summary string, blocks ...slack.Block) error {
	_, ts, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(summary, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("post to slack channel %s: %w", n.channelID, err)
	}
	n.logger.Debug("slack message posted", zap.Int64("record_id", recordID), zap.String("ts", ts))
	return nil
}

// UploadReport shares a generated report file in the channel.
func (n *Notifier) UploadReport(ctx context.Context, path, title, comment string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat report: %w", err)
	}
	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:           path,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(path),
		Channel:        n.channelID,
		Title:          title,
		InitialComment: comment,
	})
	if err != nil {
		return fmt.Errorf("upload report to slack: %w", err)
	}
	n.logger.Info("report uploaded to slack", zap.String("file", filepath.Base(path)), zap.String("channel", n.channelID))
	return nil
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func actorName(a domain.Actor) string {
	if name := strings.TrimSpace(a.Username); name != "" {
		return name
	}
	return fmt.Sprintf("usuario %d", a.UserID)
}
