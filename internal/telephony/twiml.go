package telephony

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// URLResolver turns a Target into the absolute URL the gateway should call.
type URLResolver func(Target) string

// WebhookURLs resolves targets under base+prefix, e.g.
// https://voice.example.com + /api/voice + doctor-name.
func WebhookURLs(base, prefix string) URLResolver {
	base = strings.TrimRight(base, "/")
	prefix = "/" + strings.Trim(prefix, "/")
	return func(t Target) string {
		u := base + prefix + "/" + strings.TrimLeft(t.Endpoint, "/")
		if len(t.Query) > 0 {
			u += "?" + t.Query.Encode()
		}
		return u
	}
}

// RenderTwiML converts a Document into a TwiML <Response>.
func RenderTwiML(doc *Document, resolve URLResolver) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("telephony: render twiml: nil document")
	}
	if resolve == nil {
		return "", fmt.Errorf("telephony: render twiml: nil url resolver")
	}

	elements := make([]twiml.Element, 0, len(doc.Verbs))
	for i, v := range doc.Verbs {
		switch verb := v.(type) {
		case Say:
			elements = append(elements, sayElement(verb))
		case Pause:
			elements = append(elements, &twiml.VoicePause{Length: strconv.Itoa(verb.Seconds)})
		case Gather:
			elements = append(elements, gatherElement(verb, resolve))
		case Redirect:
			elements = append(elements, &twiml.VoiceRedirect{Url: resolve(verb.Target), Method: "POST"})
		case Hangup:
			elements = append(elements, &twiml.VoiceHangup{})
		default:
			return "", fmt.Errorf("telephony: render twiml: unsupported verb %T at %d", v, i)
		}
	}

	out, err := twiml.Voice(elements)
	if err != nil {
		return "", fmt.Errorf("telephony: render twiml: %w", err)
	}
	return out, nil
}

func sayElement(s Say) *twiml.VoiceSay {
	return &twiml.VoiceSay{
		Message:  s.Text,
		Voice:    s.Voice.Name,
		Language: s.Voice.Language,
	}
}

func gatherElement(g Gather, resolve URLResolver) *twiml.VoiceGather {
	el := &twiml.VoiceGather{
		Input:         g.Input,
		Action:        resolve(g.Action),
		Method:        "POST",
		SpeechTimeout: g.SpeechTimeout,
		Language:      g.Language,
	}
	if g.Timeout > 0 {
		el.Timeout = strconv.Itoa(g.Timeout)
	}
	if g.NumDigits > 0 {
		el.NumDigits = strconv.Itoa(g.NumDigits)
	}
	for _, p := range g.Prompts {
		el.InnerElements = append(el.InnerElements, sayElement(p))
	}
	return el
}
