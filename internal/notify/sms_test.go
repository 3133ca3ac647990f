package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeMessageCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM1"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestNewTwilioSMSSenderRequiresCredentials(t *testing.T) {
	_, err := NewTwilioSMSSender("", "token", "+15550001111", nil)
	assert.Error(t, err)
}

func TestTwilioSMSSenderSend(t *testing.T) {
	api := &fakeMessageCreator{}
	s := newTwilioSMSSender(api, "+15550001111", nil)

	require.NoError(t, s.SendSMS(context.Background(), "+919876543210", "hello"))
	assert.Equal(t, "+919876543210", *api.params.To)
	assert.Equal(t, "+15550001111", *api.params.From)
	assert.Equal(t, "hello", *api.params.Body)
}

func TestTwilioSMSSenderWrapsError(t *testing.T) {
	api := &fakeMessageCreator{err: errors.New("21211 invalid to")}
	s := newTwilioSMSSender(api, "+15550001111", nil)

	err := s.SendSMS(context.Background(), "+91", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.err)
}

func TestTwilioSMSSenderHonorsCanceledContext(t *testing.T) {
	api := &fakeMessageCreator{}
	s := newTwilioSMSSender(api, "+15550001111", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.SendSMS(ctx, "+919876543210", "hello"), context.Canceled)
	assert.Nil(t, api.params)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
