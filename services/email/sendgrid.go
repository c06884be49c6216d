package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/suprss/suprss/core"
)

const sendgridEndpoint = "/v3/mail/send"

// templates whose links carry one-time tokens: SendGrid must not rewrite them for click tracking
var tokenTemplates = map[string]bool{
	"password_reset":     true,
	"email_verification": true,
}

type sendgridService struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return newSendgridService(conf, "https://api.sendgrid.com", logger)
}

func newSendgridService(conf *core.Config, host string, logger core.Logger) *sendgridService {
	from := conf.FromAddress()
	return &sendgridService{
		key:        conf.SendgridApiKey,
		host:       host,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering %q email: %v", msg.TemplateName, err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				if err := svc.send(*msg); err != nil {
					svc.logger.Error(fmt.Sprintf("sending %q email: %v", msg.TemplateName, err), err)
				}
			}
		}()
	}
}

// build maps the message to a SendGrid mail. Every "To" recipient gets their own personalization,
// so that invitees & export recipients never see each other's address.
func (svc sendgridService) build(msg core.EmailMessage) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)

	subject := prefixSubject(svc.subjPrefix, msg.Subject)
	for i, to := range msg.To {
		p := sgmail.NewPersonalization()
		p.Subject = subject
		p.AddTos(sgEmail(to))
		// copies go along with the first recipient only
		if i == 0 {
			for _, cc := range msg.Cc {
				p.AddCCs(sgEmail(cc))
			}
			for _, bcc := range msg.Bcc {
				p.AddBCCs(sgEmail(bcc))
			}
		}
		m.AddPersonalizations(p)
	}

	// SendGrid wants text/plain before text/html
	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	} else if msg.BodyStr != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.BodyStr))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, at := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     at.Content.String(),
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}

	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}
	if tokenTemplates[msg.TemplateName] {
		m.SetTrackingSettings(sgmail.NewTrackingSettings().
			SetClickTracking(sgmail.NewClickTrackingSetting().SetEnable(false).SetEnableText(false)))
	}
	return m
}

func (svc sendgridService) send(msg core.EmailMessage) error {
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.build(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// prefixSubject adds the app prefix unless the subject already starts with it.
func prefixSubject(prefix, subject string) string {
	if strings.HasPrefix(subject, prefix) {
		return subject
	}
	return prefix + subject
}
