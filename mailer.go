package passwordless

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultTempTokenExpiration is the default validity window of an unused
// temp token.
const DefaultTempTokenExpiration = 30 * time.Minute

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to, subject, body string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, subject, body)
}

// WriterMailer writes messages to an io.Writer instead of dispatching them.
// Meant for development and examples.
type WriterMailer struct {
	Out io.Writer
}

func (m WriterMailer) Send(_ context.Context, to, subject, body string) error {
	if m.Out == nil {
		return nil
	}
	_, err := fmt.Fprintf(m.Out, "====== SENDING EMAIL NOTIFICATION =======\nto: %s\nsubject: %s\n\n%s\n", to, subject, body)
	if err != nil {
		return errors.Wrap(err, ErrDeliveryFailed.Category, ErrDeliveryFailed.Message).
			WithTextCode(ErrDeliveryFailed.TextCode)
	}
	return nil
}

// MessageParams is passed as data when executing the token message template.
type MessageParams struct {
	Email           string
	SiteName        string
	Token           string
	TokenExpiration time.Duration
	SenderName      string
}

// DefaultMessageTemplate is the default body for token messages.
const DefaultMessageTemplate = `Hi {{.Email}},

This is your one-time login token for {{.SiteName}}:

{{.Token}}

The token is valid for {{printf "%.f" .TokenExpiration.Minutes}} minutes and
can be used once.

If you did not request a login token, you can ignore this email.


Regards,

{{.SenderName}}
`

func renderTokenMessage(tpl *template.Template, params MessageParams) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, params); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to render token message")
	}
	return buf.String(), nil
}
