// Package audit records every successfully sent message in Postgres.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/mailer/delivery"
	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/mailer/interceptor/audit")

var _ delivery.Interceptor = (*Interceptor)(nil)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Interceptor inserts one row per sent message. Insert failures are logged
// and never affect delivery.
type Interceptor struct {
	db       Execer
	provider string
	insert   string
	now      func() time.Time
}

// Options contains options for creating an Interceptor.
type Options struct {
	Table    string // mail_deliveries by default
	Provider string // recorded in the provider column
}

func New(db Execer, options *Options) *Interceptor {
	if options == nil {
		options = new(Options)
	}
	table := options.Table
	if table == "" {
		table = "mail_deliveries"
	}

	return &Interceptor{
		db:       db,
		provider: options.Provider,
		insert: fmt.Sprintf(
			`INSERT INTO %s (message_id, provider, sender, recipients, subject, attachments, sent_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			pgx.Identifier{table}.Sanitize(),
		),
		now: time.Now,
	}
}

// CreateTable creates the audit table if it does not exist.
func CreateTable(ctx context.Context, db Execer, table string) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	message_id  TEXT NOT NULL DEFAULT '',
	provider    TEXT NOT NULL,
	sender      TEXT NOT NULL DEFAULT '',
	recipients  TEXT[] NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	attachments INTEGER NOT NULL DEFAULT 0,
	sent_at     TIMESTAMPTZ NOT NULL
)`, pgx.Identifier{table}.Sanitize()))
	return errors.Wrapf(err, "failed to create table %s", table)
}

func (i *Interceptor) OnSending(context.Context, *delivery.SendingContext) {}

func (i *Interceptor) OnSent(ctx context.Context, msg *mail.Message) {
	ctx, span := tracer.Start(ctx, "Audit.Insert")
	defer span.End()

	messageID, _ := msg.Header("Message-Id")
	attachments := 0
	if msg.Attachments != nil {
		attachments = msg.Attachments.Len()
	}

	tag, err := i.db.Exec(ctx, i.insert,
		messageID,
		i.provider,
		msg.From.Address,
		mail.Addresses(msg.Recipients()),
		msg.Subject,
		attachments,
		i.now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContextWithErr(ctx, errors.Wrap(err, "failed to insert audit row")).Error("mail audit failed")
		return
	}

	span.SetAttributes(attribute.Int64("rows", tag.RowsAffected()))
	span.SetStatus(codes.Ok, "")
}
