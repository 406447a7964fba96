package notify

import (
	"context"
	"go.uber.org/zap"
)

type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes mails to the log instead of delivering them.
type LogMailer struct{ Log *zap.Logger }

func (l *LogMailer) Send(_ context.Context, m Message) error {
	l.Log.Info("mail",
		zap.String("from", m.From),
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body),
	)
	return nil
}
