// Package mailer delivers report emails and resolves the audience that
// receives them, backed by Resend.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

const contactsPageSize = 100

// ErrMissingAPIKey is returned when no API key was configured.
var ErrMissingAPIKey = errors.New("resend api key is required")

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one email handed to the sink.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ContactLister returns the addresses subscribed to the report audience.
type ContactLister interface {
	Subscribers(ctx context.Context) ([]string, error)
}

type Options struct {
	APIKey     string
	AudienceID string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Option func(*Options)

func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

func WithAudience(id string) Option {
	return func(o *Options) {
		o.AudienceID = id
	}
}

// WithBaseURL points the client at another API host, such as a test server.
func WithBaseURL(u string) Option {
	return func(o *Options) {
		o.BaseURL = u
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ResendClient implements Sender and ContactLister.
type ResendClient struct {
	client     *resend.Client
	audienceID string
	logger     *zap.Logger
}

// NewResendClient creates a new ResendClient instance.
func NewResendClient(opts ...Option) (*ResendClient, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if o.Logger == nil {
		l, _ := zap.NewProduction()
		o.Logger = l
	}

	client := resend.NewCustomClient(o.HTTPClient, o.APIKey)
	if o.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(o.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		client.BaseURL = base
	}

	return &ResendClient{
		client:     client,
		audienceID: o.AudienceID,
		logger:     o.Logger.Named("mailer"),
	}, nil
}

// Send delivers msg and returns the Resend email id.
func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}

	sent, err := c.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	c.logger.Info("email sent",
		zap.String("id", sent.Id),
		zap.Int("recipients", len(msg.To)),
		zap.Int("attachments", len(msg.Attachments)))
	return sent.Id, nil
}

// Subscribers pages through the audience and returns every contact that has
// not unsubscribed.
func (c *ResendClient) Subscribers(ctx context.Context) ([]string, error) {
	if c.audienceID == "" {
		return nil, errors.New("resend audience id is required")
	}

	var emails []string
	limit := contactsPageSize
	opts := &resend.ListOptions{Limit: &limit}
	for {
		page, err := c.client.Contacts.ListWithOptions(ctx, c.audienceID, opts)
		if err != nil {
			return nil, fmt.Errorf("list contacts: %w", err)
		}
		for _, contact := range page.Data {
			if contact.Unsubscribed || contact.Email == "" {
				continue
			}
			emails = append(emails, contact.Email)
		}
		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		last := page.Data[len(page.Data)-1].Id
		opts = &resend.ListOptions{Limit: &limit, After: &last}
	}

	c.logger.Debug("resolved audience", zap.String("audience_id", c.audienceID), zap.Int("subscribers", len(emails)))
	return emails, nil
}
