package delivery

import (
	"context"

	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail"
)

// SendingContext is handed to the pre-send hook. Setting Cancel skips the
// transport call and the post-send hook.
type SendingContext struct {
	Message *mail.Message
	Cancel  bool
}

// Interceptor observes, mutates or cancels a delivery. OnSending runs before
// the message is composed so header changes reach the wire; OnSent runs only
// after a successful transport call and receives the same message.
type Interceptor interface {
	OnSending(ctx context.Context, sc *SendingContext)
	OnSent(ctx context.Context, msg *mail.Message)
}

// InterceptorFuncs adapts plain functions to Interceptor. Nil fields are no-ops.
type InterceptorFuncs struct {
	Sending func(ctx context.Context, sc *SendingContext)
	Sent    func(ctx context.Context, msg *mail.Message)
}

func (f InterceptorFuncs) OnSending(ctx context.Context, sc *SendingContext) {
	if f.Sending != nil {
		f.Sending(ctx, sc)
	}
}

func (f InterceptorFuncs) OnSent(ctx context.Context, msg *mail.Message) {
	if f.Sent != nil {
		f.Sent(ctx, msg)
	}
}

// Nop is an interceptor that does nothing.
var Nop Interceptor = InterceptorFuncs{}

type chain []Interceptor

// Chain runs interceptors in order. OnSending stops at the first one that
// cancels; OnSent reaches all of them.
func Chain(interceptors ...Interceptor) Interceptor {
	out := make(chain, 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			out = append(out, i)
		}
	}
	return out
}

func (c chain) OnSending(ctx context.Context, sc *SendingContext) {
	for _, i := range c {
		i.OnSending(ctx, sc)
		if sc.Cancel {
			return
		}
	}
}

func (c chain) OnSent(ctx context.Context, msg *mail.Message) {
	for _, i := range c {
		i.OnSent(ctx, msg)
	}
}

// LoggingInterceptor writes a record for both hooks using the context logger.
type LoggingInterceptor struct{}

func (LoggingInterceptor) OnSending(ctx context.Context, sc *SendingContext) {
	logger.FromContext(ctx).Info("sending mail", messageAttrs(sc.Message)...)
}

func (LoggingInterceptor) OnSent(ctx context.Context, msg *mail.Message) {
	logger.FromContext(ctx).Info("mail sent", messageAttrs(msg)...)
}

func messageAttrs(msg *mail.Message) []any {
	attrs := []any{
		"subject", msg.Subject,
		"to", len(msg.To),
		"cc", len(msg.Cc),
		"bcc", len(msg.Bcc),
		"attachments", msg.Attachments.Len(),
	}
	if id, ok := msg.Header("Message-Id"); ok {
		attrs = append(attrs, "message_id", id)
	}
	return attrs
}
