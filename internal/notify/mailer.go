package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"invigilation/internal/logger"
)

// Message is one outgoing e-mail.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer sends through the SendGrid v3 API.
type SendgridMailer struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

func NewSendgridMailer(key string, from mail.Address, appName string) *SendgridMailer {
	return &SendgridMailer{
		key:        key,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + appName + "] ",
	}
}

func (m *SendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return v3
}

func (m *SendgridMailer) Send(_ context.Context, msg Message) error {
	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// ConsoleMailer writes messages to the log instead of sending them.
type ConsoleMailer struct {
	subjPrefix string
}

func NewConsoleMailer(appName string) *ConsoleMailer {
	return &ConsoleMailer{subjPrefix: "[" + appName + "] "}
}

func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	logger.Info().
		Str("to", msg.To.String()).
		Str("subject", m.subjPrefix+msg.Subject).
		Str("body", msg.Text).
		Msg("email")
	return nil
}

// NewMailer picks the mailer for backend ("sendgrid" or "console").
func NewMailer(backend, apiKey, from, appName string) (Mailer, error) {
	switch backend {
	case "", "console":
		return NewConsoleMailer(appName), nil
	case "sendgrid":
		if apiKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid mail backend")
		}
		addr, err := mail.ParseAddress(from)
		if err != nil {
			return nil, fmt.Errorf("invalid MAIL_FROM %q: %w", from, err)
		}
		return NewSendgridMailer(apiKey, *addr, appName), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", backend)
	}
}
