package ivr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/telehealth-ivr/internal/telephony"
)

func TestDefaultCatalogIsComplete(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.True(t, c.Supports(English))
	assert.True(t, c.Supports(Hindi))
	assert.False(t, c.Supports(""))
	assert.False(t, c.Supports("fr"))
}

func TestCatalogSubstitutesVars(t *testing.T) {
	c := DefaultCatalog()
	text := c.Text(English, MsgSlotNotAvailable, Vars{"alternativeTime": "3:00 PM"})
	assert.Contains(t, text, "3:00 PM")
	assert.NotContains(t, text, "{alternativeTime}")

	hi := c.Text(Hindi, MsgAppointmentConfirmed, Vars{"doctorName": "Vinayak", "date": "d", "time": "t"})
	assert.Contains(t, hi, "Vinayak")
}

func TestCatalogFallsBackForMissingKeys(t *testing.T) {
	c := NewCatalog(English)
	require.NoError(t, c.Register(English, telephony.Voice{Name: "Polly.Joanna", Language: "en-US"}, englishMessages))
	err := c.Register("ta", telephony.Voice{Name: "Polly.Tamil", Language: "ta-IN"}, map[MessageKey]string{
		MsgThankYou: "nandri",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(MsgWelcome))
	assert.Error(t, c.Validate())

	assert.Equal(t, "nandri", c.Text("ta", MsgThankYou, nil))
	say := c.Say("ta", MsgInvalidInput, nil)
	assert.Equal(t, englishMessages[MsgInvalidInput], say.Text)
	assert.Equal(t, "en-US", say.Voice.Language, "fallback text is spoken with the fallback voice")

	assert.Equal(t, "ta-IN", c.Say("ta", MsgThankYou, nil).Voice.Language)
	assert.Equal(t, "en-US", c.Voice("de").Language)
}
