package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Alerter notifies operators about failures that need a human.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type alerter struct {
	client   publisher
	topicARN string
}

// NewAlerter publishes alerts to an SNS topic.
func NewAlerter(awsCfg aws.Config, endpointURL, topicARN string) Alerter {
	var opts []func(*sns.Options)
	if endpointURL != "" {
		opts = append(opts, func(o *sns.Options) { o.BaseEndpoint = aws.String(endpointURL) })
	}
	return &alerter{client: sns.NewFromConfig(awsCfg, opts...), topicARN: topicARN}
}

// SNS caps subjects at 100 characters.
const maxSubject = 100

func (a *alerter) Alert(ctx context.Context, subject, message string) error {
	if len(subject) > maxSubject {
		subject = subject[:maxSubject]
	}
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

type nopAlerter struct{}

// Nop is used when no alert topic is configured.
func Nop() Alerter { return nopAlerter{} }

func (nopAlerter) Alert(context.Context, string, string) error { return nil }
