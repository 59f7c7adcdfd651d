package report

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/mailer"
	"github.com/godilite/support-metrics/internal/metrics"
	"github.com/godilite/support-metrics/internal/service"
)

var ErrNoRecipients = errors.New("no recipients")

type DispatcherOptions struct {
	From string
	// Recipients overrides the audience list when set.
	Recipients []string
	AttachXLSX bool
	Logger     *zap.Logger
}

type DispatcherOption func(*DispatcherOptions)

func WithFrom(from string) DispatcherOption {
	return func(o *DispatcherOptions) {
		o.From = from
	}
}

// WithRecipients sends to a fixed list instead of the audience.
func WithRecipients(to []string) DispatcherOption {
	return func(o *DispatcherOptions) {
		o.Recipients = to
	}
}

func WithXLSXAttachment(enabled bool) DispatcherOption {
	return func(o *DispatcherOptions) {
		o.AttachXLSX = enabled
	}
}

func WithLogger(l *zap.Logger) DispatcherOption {
	return func(o *DispatcherOptions) {
		o.Logger = l
	}
}

// Dispatcher renders a report into an email and hands it to the sink.
type Dispatcher struct {
	sender   mailer.Sender
	contacts mailer.ContactLister
	opts     DispatcherOptions
	logger   *zap.Logger
}

// NewDispatcher creates a new Dispatcher instance. contacts may be nil when a
// fixed recipient list is configured.
func NewDispatcher(sender mailer.Sender, contacts mailer.ContactLister, opts ...DispatcherOption) *Dispatcher {
	if sender == nil {
		panic("sender must not be nil")
	}
	var o DispatcherOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		l, _ := zap.NewProduction()
		o.Logger = l
	}
	return &Dispatcher{
		sender:   sender,
		contacts: contacts,
		opts:     o,
		logger:   o.Logger.Named("dispatch"),
	}
}

// Dispatch sends r and returns the sink's message id.
func (d *Dispatcher) Dispatch(ctx context.Context, r service.Report) (string, error) {
	msg, err := d.Compose(ctx, r)
	if err != nil {
		if errors.Is(err, ErrNoRecipients) {
			metrics.EmailsTotal.WithLabelValues("no_recipients").Inc()
		} else {
			metrics.EmailsTotal.WithLabelValues("failed").Inc()
		}
		return "", err
	}

	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("send report: %w", err)
	}
	metrics.EmailsTotal.WithLabelValues("sent").Inc()

	d.logger.Info("report sent",
		zap.String("message_id", id),
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(msg.To)))
	return id, nil
}

// Compose builds the email for r without sending it.
func (d *Dispatcher) Compose(ctx context.Context, r service.Report) (mailer.Message, error) {
	to, err := d.recipients(ctx)
	if err != nil {
		return mailer.Message{}, err
	}

	html, err := RenderEmail(r)
	if err != nil {
		return mailer.Message{}, err
	}

	msg := mailer.Message{
		From:    d.opts.From,
		To:      to,
		Subject: Subject(r),
		HTML:    html,
	}
	if d.opts.AttachXLSX {
		content, err := Workbook(BuildTables(r))
		if err != nil {
			return mailer.Message{}, err
		}
		msg.Attachments = append(msg.Attachments, mailer.Attachment{
			Filename:    "support-metrics_" + windowDates(r.WindowStart, r.WindowEnd) + ".xlsx",
			ContentType: XLSXContentType,
			Content:     content,
		})
	}
	return msg, nil
}

func (d *Dispatcher) recipients(ctx context.Context) ([]string, error) {
	if len(d.opts.Recipients) > 0 {
		return d.opts.Recipients, nil
	}
	if d.contacts == nil {
		return nil, ErrNoRecipients
	}
	to, err := d.contacts.Subscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	return to, nil
}
