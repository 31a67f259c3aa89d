// internal/notification/mailer.go
package notification

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
)

// EmailAPI is the slice of the SES client the mailer uses.
type EmailAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SESMailer delivers rendered messages through Amazon SES.
type SESMailer struct {
	api     EmailAPI
	from    string
	replyTo string
}

func NewSESMailer(api EmailAPI, from, replyTo string) *SESMailer {
	return &SESMailer{api: api, from: from, replyTo: replyTo}
}

// Send returns the SES message id.
func (m *SESMailer) Send(ctx context.Context, to string, msg Message) (string, error) {
	if to == "" {
		return "", Permanent(errors.New("email recipient is empty"))
	}

	input := &ses.SendEmailInput{
		Source:      awssdk.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(msg.Subject), Charset: awssdk.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(msg.Text), Charset: awssdk.String("UTF-8")},
				Html: &types.Content{Data: awssdk.String(msg.HTML), Charset: awssdk.String("UTF-8")},
			},
		},
	}
	if m.replyTo != "" {
		input.ReplyToAddresses = []string{m.replyTo}
	}

	out, err := m.api.SendEmail(ctx, input)
	if err != nil {
		return "", classifyAWSError("ses send email", err)
	}
	return awssdk.ToString(out.MessageId), nil
}

// permanentCodes are AWS error codes that will not succeed on retry.
var permanentCodes = map[string]bool{
	"MessageRejected":                       true,
	"MailFromDomainNotVerifiedException":    true,
	"ConfigurationSetDoesNotExistException": true,
	"AccountSendingPausedException":         true,
	"InvalidParameter":                      true,
	"InvalidParameterValue":                 true,
	"NotFound":                              true,
	"AuthorizationError":                    true,
}

func classifyAWSError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
		return Permanent(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
