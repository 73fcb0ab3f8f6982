// internal/transport/ses.go
package transport

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"campaign-workers/internal/common/aws"
	appconfig "campaign-workers/internal/common/config"
	"campaign-workers/internal/common/errors"
	"campaign-workers/internal/common/logger"
)

// SESTransport delivers mail through Amazon SES.
type SESTransport struct {
	client *aws.SESClient
	from   string
	logger logger.Logger
}

func NewSESTransport(ctx context.Context, cfg appconfig.TransportConfig, log logger.Logger) (*SESTransport, error) {
	client, err := aws.NewSESClient(ctx, cfg.SES.Region)
	if err != nil {
		return nil, err
	}
	return &SESTransport{
		client: client,
		from:   cfg.FromEmail,
		logger: log.WithFields(map[string]interface{}{"transport": "ses"}),
	}, nil
}

func (t *SESTransport) SendEmail(ctx context.Context, to, subject, html string) (*Result, error) {
	if !isValidEmail(to) {
		return nil, errors.NewTransportFailedError("ses", errInvalidAddress(to))
	}

	charset := "UTF-8"
	input := &ses.SendEmailInput{
		Source: &t.from,
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: &subject, Charset: &charset},
			Body: &types.Body{
				Html: &types.Content{Data: &html, Charset: &charset},
			},
		},
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, errors.NewTransportFailedError("ses", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	t.logger.Debug("email sent", map[string]interface{}{
		"to":        to,
		"messageId": messageID,
	})
	return &Result{MessageID: messageID, Provider: "ses"}, nil
}

type errInvalidAddress string

func (e errInvalidAddress) Error() string {
	return "invalid recipient address: " + string(e)
}
