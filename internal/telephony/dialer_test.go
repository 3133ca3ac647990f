package telephony

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCallCreator struct {
	params *twilioApi.CreateCallParams
	sid    string
	err    error
}

func (f *fakeCallCreator) CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := f.sid
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func TestTwilioDialerInlineTwiML(t *testing.T) {
	api := &fakeCallCreator{sid: "CA42"}
	d := newTwilioDialer(api, "+15550001111", nil)

	sid, err := d.Dial(context.Background(), OutboundCall{To: "+919876543210", TwiML: "<Response/>"})
	require.NoError(t, err)
	assert.Equal(t, "CA42", sid)
	require.NotNil(t, api.params.To)
	assert.Equal(t, "+919876543210", *api.params.To)
	assert.Equal(t, "+15550001111", *api.params.From)
	assert.Equal(t, "<Response/>", *api.params.Twiml)
	assert.Nil(t, api.params.Url)
}

func TestTwilioDialerWebhookURL(t *testing.T) {
	api := &fakeCallCreator{sid: "CA43"}
	d := newTwilioDialer(api, "+15550001111", nil)

	_, err := d.Dial(context.Background(), OutboundCall{To: "+919876543210", URL: "https://x/api/voice/reminder-webhook?appointmentId=1"})
	require.NoError(t, err)
	assert.Equal(t, "https://x/api/voice/reminder-webhook?appointmentId=1", *api.params.Url)
}

func TestTwilioDialerErrors(t *testing.T) {
	d := newTwilioDialer(&fakeCallCreator{err: errors.New("boom")}, "+1555", nil)

	_, err := d.Dial(context.Background(), OutboundCall{To: "+91", TwiML: "<Response/>"})
	assert.ErrorContains(t, err, "boom")

	_, err = d.Dial(context.Background(), OutboundCall{TwiML: "<Response/>"})
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = d.Dial(context.Background(), OutboundCall{To: "+91", TwiML: "x", URL: "y"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Dial(ctx, OutboundCall{To: "+91", URL: "y"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewTwilioDialer("", "", "", nil)
	assert.Error(t, err)
}
