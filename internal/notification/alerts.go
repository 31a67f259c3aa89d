// internal/notification/alerts.go
package notification

import (
	"context"
	"errors"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// PublishAPI is the slice of the SNS client the alerter uses.
type PublishAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSAlerter publishes reviewer alerts to a topic.
type SNSAlerter struct {
	api      PublishAPI
	topicARN string
}

func NewSNSAlerter(api PublishAPI, topicARN string) *SNSAlerter {
	return &SNSAlerter{api: api, topicARN: topicARN}
}

// Alert returns the SNS message id.
func (a *SNSAlerter) Alert(ctx context.Context, endorsementID string, msg Message) (string, error) {
	if a.topicARN == "" {
		return "", Permanent(errors.New("reviewer alert topic is not configured"))
	}

	subject := msg.Subject
	// SNS rejects subjects longer than 100 characters.
	if r := []rune(subject); len(r) > 100 {
		subject = string(r[:100])
	}

	out, err := a.api.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(a.topicARN),
		Subject:  awssdk.String(subject),
		Message:  awssdk.String(msg.Text),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"endorsementId": {DataType: awssdk.String("String"), StringValue: awssdk.String(endorsementID)},
		},
	})
	if err != nil {
		return "", classifyAWSError("sns publish", err)
	}
	return awssdk.ToString(out.MessageId), nil
}
