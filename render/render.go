// Package render connects a template engine to mail.Message alternate views.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/mail"
)

// Result holds the rendered bodies. Either may be empty.
type Result struct {
	Text string
	HTML string
}

// Renderer renders a named view with a model.
type Renderer interface {
	Render(ctx context.Context, name string, model any) (Result, error)
}

// TemplateNotFoundError means neither a plain-text nor an HTML rendering exists
// for the view name.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("render: no text or html template for view %q", e.Name)
}

// IsTemplateNotFound checks if err is a TemplateNotFoundError.
func IsTemplateNotFound(err error) bool {
	var target *TemplateNotFoundError
	return errors.As(err, &target)
}

// Options controls Apply.
type Options struct {
	// Trim strips leading and trailing whitespace from each body.
	Trim bool
}

// Apply renders name and appends the results to msg as alternate views,
// plain text first. Bodies are encoded with the message charset.
func Apply(ctx context.Context, r Renderer, msg *mail.Message, name string, model any, opts Options) error {
	if r == nil {
		return &mail.InvalidArgumentError{Arg: "renderer"}
	}
	if msg == nil {
		return &mail.InvalidArgumentError{Arg: "message"}
	}
	if name == "" {
		return &mail.InvalidArgumentError{Arg: "name", Reason: "view name is empty"}
	}

	res, err := r.Render(ctx, name, model)
	if err != nil {
		return err
	}
	if res.Text == "" && res.HTML == "" {
		return &TemplateNotFoundError{Name: name}
	}

	if res.Text != "" {
		if err := msg.AddView(mail.ContentTypeText, body(res.Text, opts)); err != nil {
			return errors.Wrap(err, "failed to add text view")
		}
	}
	if res.HTML != "" {
		if err := msg.AddView(mail.ContentTypeHTML, body(res.HTML, opts)); err != nil {
			return errors.Wrap(err, "failed to add html view")
		}
	}
	return nil
}

func body(s string, opts Options) string {
	if opts.Trim {
		return strings.TrimSpace(s)
	}
	return s
}

// Func adapts a function to Renderer.
type Func func(ctx context.Context, name string, model any) (Result, error)

func (f Func) Render(ctx context.Context, name string, model any) (Result, error) {
	return f(ctx, name, model)
}
