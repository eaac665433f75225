package notification

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SESAPI is the part of the SES client used to send mail
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier e-mails the team through Amazon SES
type SESNotifier struct {
	client SESAPI
	from   string
	to     string
	logger *logrus.Logger
}

// NewSESNotifier loads the default AWS credential chain for region
func NewSESNotifier(ctx context.Context, region, from, to string, logger *logrus.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), from, to, logger), nil
}

func NewSESNotifierWithClient(client SESAPI, from, to string, logger *logrus.Logger) *SESNotifier {
	return &SESNotifier{client: client, from: from, to: to, logger: logger}
}

func (n *SESNotifier) Name() string {
	return "ses"
}

func (n *SESNotifier) Send(ctx context.Context, msg Message) error {
	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return errors.Wrap(err, "failed to send email")
	}

	n.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"ses_id":     aws.ToString(out.MessageId),
	}).Debug("Email sent")
	return nil
}
