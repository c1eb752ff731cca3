package email

import (
	"context"
	"errors"
)

var ErrNoRecipient = errors.New("email_no_recipient")

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error
}

// Subjecter lets template data choose its own subject line.
type Subjecter interface {
	EmailSubject() string
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	if _, err := Render(templateName, data); err != nil {
		return err
	}
	return nil
}
