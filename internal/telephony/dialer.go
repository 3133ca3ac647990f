package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// OutboundCall describes a call to originate. Exactly one of TwiML (an inline
// first document) or URL (a webhook that returns it) should be set.
type OutboundCall struct {
	To    string
	TwiML string
	URL   string
}

// Dialer originates outbound calls and returns the gateway's call identifier.
type Dialer interface {
	Dial(ctx context.Context, call OutboundCall) (string, error)
}

type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioDialer places calls through the Twilio REST API.
type TwilioDialer struct {
	api    callCreator
	from   string
	logger *logging.Logger
}

// NewTwilioDialer builds a dialer from account credentials.
func NewTwilioDialer(accountSID, authToken, from string, logger *logging.Logger) (*TwilioDialer, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("telephony: twilio credentials and from number are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioDialer(client.Api, from, logger), nil
}

func newTwilioDialer(api callCreator, from string, logger *logging.Logger) *TwilioDialer {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioDialer{api: api, from: from, logger: logger}
}

func (d *TwilioDialer) Dial(ctx context.Context, call OutboundCall) (string, error) {
	if call.To == "" {
		return "", ErrInvalidPhone
	}
	if (call.TwiML == "") == (call.URL == "") {
		return "", errors.New("telephony: dial: exactly one of twiml or url is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(call.To)
	params.SetFrom(d.from)
	if call.TwiML != "" {
		params.SetTwiml(call.TwiML)
	} else {
		params.SetUrl(call.URL)
		params.SetMethod("POST")
	}

	resp, err := d.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("telephony: create call: response missing sid")
	}
	d.logger.Info("outbound call created", "call_sid", *resp.Sid, "to", logging.MaskPhone(call.To))
	return *resp.Sid, nil
}
