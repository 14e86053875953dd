package notify

import (
	"net/mail"
	"net/smtp"

	"github.com/scorredoira/email"
	"github.com/sirupsen/logrus"
)

// SMTPConfig comes from the smtp section of the config file.
type SMTPConfig struct {
	Host        string // empty disables sending
	Addr        string // host:port
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// SMTPMailer sends HTML mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	Config SMTPConfig
	Log    *logrus.Logger
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {

	if m.Config.Host == "" {
		m.Log.Debug("smtp host is not configured, dropping notification")
		return nil
	}

	var auth = smtp.PlainAuth("", m.Config.Username, m.Config.Password, m.Config.Host)
	var msg = email.NewHTMLMessage(subject, htmlBody)
	msg.From = mail.Address{Name: m.Config.FromName, Address: m.Config.FromAddress}
	msg.To = []string{to}
	return email.Send(m.Config.Addr, auth, msg)
}
