// internal/notification/templates.go
package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"endorsement-workers/internal/common/config"
	"endorsement-workers/internal/endorsement"
)

// Message is a rendered notification ready for a transport.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// messageData is what every template sees.
type messageData struct {
	Name         string
	Organization string
	Email        string
	Headline     string
	Reason       string
	VerifyLink   string
	StatusLink   string
	ShowcaseLink string
	ReviewLink   string
	ExpiresAt    string
}

type messageTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func newMessageTemplate(name, subject, text, html string) messageTemplate {
	return messageTemplate{
		subject: texttemplate.Must(texttemplate.New(name + "_subject").Option("missingkey=error").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name).Option("missingkey=error").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name).Option("missingkey=error").Parse(html)),
	}
}

var messageTemplates = map[endorsement.NotificationKind]messageTemplate{
	endorsement.KindVerificationRequest: newMessageTemplate("verification_request",
		"Confirm your endorsement for {{.Organization}}",
		`Hello {{.Name}},

Thank you for endorsing on behalf of {{.Organization}}. Please confirm your email address to send your endorsement for review:

{{.VerifyLink}}

This link expires on {{.ExpiresAt}}. If you did not submit an endorsement, you can ignore this message.
`,
		`<p>Hello {{.Name}},</p>
<p>Thank you for endorsing on behalf of <strong>{{.Organization}}</strong>. Please confirm your email address to send your endorsement for review:</p>
<p><a href="{{.VerifyLink}}">Confirm my email</a></p>
<p>This link expires on {{.ExpiresAt}}. If you did not submit an endorsement, you can ignore this message.</p>
`),
	endorsement.KindApprovalNotice: newMessageTemplate("approval_notice",
		"Your endorsement for {{.Organization}} is live",
		`Hello {{.Name}},

Good news: the endorsement from {{.Organization}} ("{{.Headline}}") has been approved and now appears on the public showcase:

{{.ShowcaseLink}}

You can check its status at any time here: {{.StatusLink}}
`,
		`<p>Hello {{.Name}},</p>
<p>Good news: the endorsement from <strong>{{.Organization}}</strong> ("{{.Headline}}") has been approved and now appears on the <a href="{{.ShowcaseLink}}">public showcase</a>.</p>
<p>You can <a href="{{.StatusLink}}">check its status</a> at any time.</p>
`),
	endorsement.KindRejectionNotice: newMessageTemplate("rejection_notice",
		"Update on your endorsement for {{.Organization}}",
		`Hello {{.Name}},

Thank you for your endorsement on behalf of {{.Organization}}. After review it was not accepted for the showcase.

Reason: {{.Reason}}

Status: {{.StatusLink}}
`,
		`<p>Hello {{.Name}},</p>
<p>Thank you for your endorsement on behalf of <strong>{{.Organization}}</strong>. After review it was not accepted for the showcase.</p>
<p><strong>Reason:</strong> {{.Reason}}</p>
<p><a href="{{.StatusLink}}">View status</a></p>
`),
	endorsement.KindReviewRequested: newMessageTemplate("review_requested",
		"Endorsement awaiting review: {{.Organization}}",
		`{{.Organization}} ({{.Name}}) verified their email and their endorsement "{{.Headline}}" is ready for review.

{{.ReviewLink}}
`,
		`<p><strong>{{.Organization}}</strong> ({{.Name}}) verified their email and their endorsement "{{.Headline}}" is ready for review.</p>
<p><a href="{{.ReviewLink}}">Open in review queue</a></p>
`),
}

// Templates renders notification jobs with the configured deep-link bases.
type Templates struct {
	links config.LinksConfig
}

func NewTemplates(links config.LinksConfig) *Templates {
	return &Templates{links: links}
}

// Render builds the message for job. The result depends only on the job
// payload and the link configuration.
func (t *Templates) Render(job *endorsement.NotificationJob) (Message, error) {
	tmpl, ok := messageTemplates[job.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for notification kind %q", job.Kind)
	}

	data, err := t.data(job)
	if err != nil {
		return Message{}, err
	}

	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", job.Kind, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", job.Kind, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", job.Kind, err)
	}

	return Message{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}

func (t *Templates) data(job *endorsement.NotificationJob) (messageData, error) {
	p := job.Payload
	data := messageData{
		Name:         p.ContactName,
		Organization: p.OrganizationName,
		Email:        p.Email,
		Headline:     p.Headline,
		Reason:       p.Reason,
		ShowcaseLink: t.links.ShowcaseURL,
	}

	var err error
	switch job.Kind {
	case endorsement.KindVerificationRequest:
		if p.Token == "" {
			return data, fmt.Errorf("verification request %s has no token", job.ID)
		}
		data.VerifyLink, err = withQuery(t.links.VerifyURL, url.Values{"email": {p.Email}, "token": {p.Token}})
		if p.TokenExpiresAt != nil {
			data.ExpiresAt = p.TokenExpiresAt.UTC().Format(time.RFC1123)
		}
	case endorsement.KindApprovalNotice:
		data.StatusLink, err = withQuery(t.links.StatusURL, url.Values{"email": {p.Email}})
	case endorsement.KindRejectionNotice:
		if strings.TrimSpace(p.Reason) == "" {
			return data, fmt.Errorf("rejection notice %s has no reason", job.ID)
		}
		data.StatusLink, err = withQuery(t.links.StatusURL, url.Values{"email": {p.Email}})
	case endorsement.KindReviewRequested:
		data.ReviewLink, err = url.JoinPath(t.links.ReviewURL, p.EndorsementID)
	}
	if err != nil {
		return data, fmt.Errorf("build link for %s: %w", job.Kind, err)
	}
	return data, nil
}

func withQuery(base string, values url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
