// Package notify resolves the recipients of a workflow transition and sends
// one message per recipient. Dispatch is fire-and-forget relative to the
// transition: a failed send is logged and reported, never retried here.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/courseloc/courseloc/core"
	"github.com/courseloc/courseloc/util"
	"github.com/sirupsen/logrus"
	"gitlab.com/golang-commonmark/markdown"
)

// review notes are written in markdown, render them for the mail body
var md = markdown.New(markdown.Linkify(true), markdown.Typographer(true), markdown.MaxNesting(10))

// Mailer hands one message to the transport. No retry guarantee is assumed.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type Dispatcher struct {
	Directory core.UserDB
	Mailer    Mailer
	Log       *logrus.Logger
}

func NewDispatcher(directory core.UserDB, mailer Mailer, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		Directory: directory,
		Mailer:    mailer,
		Log:       log,
	}
}

// Notify implements core.Notifier. Recipients: all superadmins for a new
// pending_review, the submitter for approved and changes_requested.
func (d *Dispatcher) Notify(ctx context.Context, ev core.Event, unit core.DBUnit, reason string) error {

	recipients, err := d.recipients(ev, unit)
	if err != nil {
		return err
	}

	subject, body := d.compose(ev, unit, reason)

	var errs []error
	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.Mailer.Send(recipient.Name(), subject, body); err != nil {
			d.Log.WithFields(logrus.Fields{"to": recipient.Name(), "key": unit.Key()}).WithError(err).Error("sending notification failed")
			errs = append(errs, err)
			continue
		}
		d.Log.WithFields(logrus.Fields{"to": recipient.Name(), "key": unit.Key(), "event": ev}).Debug("notification sent")
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) recipients(ev core.Event, unit core.DBUnit) ([]core.DBUser, error) {

	switch ev {

	case core.EventSubmit, core.EventResubmit:
		return d.Directory.GetSuperAdmins()

	case core.EventApprove, core.EventReject, core.EventDirectEdit:
		if unit.SubmittedBy() == 0 {
			return nil, nil // never submitted, nobody to tell
		}
		submitter, err := d.Directory.GetUser(unit.SubmittedBy())
		if err != nil {
			return nil, fmt.Errorf("resolving submitter of %s: %w", unit.Key(), err)
		}
		return []core.DBUser{submitter}, nil
	}

	return nil, nil
}

func (d *Dispatcher) compose(ev core.Event, unit core.DBUnit, reason string) (subject, body string) {

	switch ev {

	case core.EventSubmit, core.EventResubmit:
		subject = fmt.Sprintf("Review requested: %s", util.Trunc(unit.Key(), 64))
		body = fmt.Sprintf(`<p>The translation unit <strong>%s</strong> has been submitted for review.</p><p>Languages: %s</p>`,
			unit.Key(), languageList(unit.Content()))

	case core.EventApprove, core.EventDirectEdit:
		subject = fmt.Sprintf("Approved: %s", util.Trunc(unit.Key(), 64))
		body = fmt.Sprintf(`<p>Your translation unit <strong>%s</strong> has been approved and published (version %d).</p>`,
			unit.Key(), unit.Version())
		if notes := unit.ReviewNotes(); notes != "" {
			body += md.RenderToString([]byte(notes))
		}

	case core.EventReject:
		subject = fmt.Sprintf("Changes requested: %s", util.Trunc(unit.Key(), 64))
		body = fmt.Sprintf(`<p>Your translation unit <strong>%s</strong> needs changes before it can be published.</p>`, unit.Key())
		if reason != "" {
			body += "<p>Reason:</p>" + md.RenderToString([]byte(reason))
		}
	}

	return subject, body
}

func languageList(content core.Content) string {
	var s = ""
	for i, l := range content.Languages() {
		if i > 0 {
			s += ", "
		}
		s += string(l)
	}
	if s == "" {
		s = "none"
	}
	return s
}
