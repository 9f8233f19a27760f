package mail

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"

	"github.com/avolkov/market-api/internal/config"
)

//go:embed templates/*.txt
var templatesFS embed.FS

const queueSize = 64

type message struct {
	to   string
	body []byte
}

// Mailer delivers templated notifications through SMTP. Sends go
// through a bounded queue drained by a single worker, so a slow or
// failing transport never delays a request or webhook acknowledgment.
type Mailer struct {
	cfg       config.Mail
	templates *template.Template
	log       *slog.Logger
	queue     chan message
	done      chan struct{}
}

func New(cfg config.Mail, log *slog.Logger) (*Mailer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}

	m := &Mailer{
		cfg:       cfg,
		templates: tmpl,
		log:       log.With("component", "mailer"),
		queue:     make(chan message, queueSize),
		done:      make(chan struct{}),
	}
	go m.worker()
	return m, nil
}

// Send renders the named template and queues the message. When the
// queue is full the message is dropped with a warning; notification
// delivery is best effort.
func (m *Mailer) Send(subject, to, templateName string, data interface{}) {
	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n", m.cfg.Username, to, subject)
	if err := m.templates.ExecuteTemplate(&body, templateName+".txt", data); err != nil {
		m.log.Error("mail_render_error", "template", templateName, "error", err)
		return
	}

	select {
	case m.queue <- message{to: to, body: body.Bytes()}:
	default:
		m.log.Warn("mail_queue_full", "to", to, "subject", subject)
	}
}

func (m *Mailer) worker() {
	defer close(m.done)
	addr := fmt.Sprintf("%s:%d", m.cfg.Server, m.cfg.Port)
	for msg := range m.queue {
		var auth smtp.Auth
		if m.cfg.Username != "" {
			auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)
		}
		if err := smtp.SendMail(addr, auth, m.cfg.Username, []string{msg.to}, msg.body); err != nil {
			m.log.Error("mail_send_error", "to", msg.to, "error", err)
		}
	}
}

// Close stops accepting messages and waits for the queue to drain.
func (m *Mailer) Close() {
	close(m.queue)
	<-m.done
}
