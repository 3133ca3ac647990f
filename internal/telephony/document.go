// Package telephony holds the gateway-facing pieces of the voice service:
// the response document the dialogue produces, its TwiML rendering, Twilio
// request signatures, phone number normalization and outbound dialing.
package telephony

import "net/url"

// Voice selects the text-to-speech voice and locale for a Say verb.
type Voice struct {
	Name     string
	Language string
}

// Target names a webhook endpoint (for example "doctor-name") plus optional
// query parameters. It is resolved to an absolute URL only at render time.
type Target struct {
	Endpoint string
	Query    url.Values
}

// To builds a Target without query parameters.
func To(endpoint string) Target {
	return Target{Endpoint: endpoint}
}

// With returns a copy of t carrying an extra query parameter.
func (t Target) With(key, value string) Target {
	q := url.Values{}
	for k, v := range t.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(key, value)
	return Target{Endpoint: t.Endpoint, Query: q}
}

// Verb is one instruction in a Document.
type Verb interface {
	verb()
}

// Say speaks Text with the given voice.
type Say struct {
	Text  string
	Voice Voice
}

// Pause holds the line silently.
type Pause struct {
	Seconds int
}

// Input modes accepted by Gather.
const (
	InputDTMF       = "dtmf"
	InputSpeech     = "speech"
	InputSpeechDTMF = "speech dtmf"
)

// Gather plays Prompts while collecting caller input, then posts the input to
// Action. When the caller provides nothing the gateway continues with the
// next verb in the document.
type Gather struct {
	Input         string
	Action        Target
	Timeout       int
	NumDigits     int
	SpeechTimeout string
	Language      string
	Prompts       []Say
}

// Redirect hands control to another endpoint without caller input.
type Redirect struct {
	Target Target
}

// Hangup ends the call.
type Hangup struct{}

func (Say) verb()      {}
func (Pause) verb()    {}
func (Gather) verb()   {}
func (Redirect) verb() {}
func (Hangup) verb()   {}

// Document is the ordered instruction set returned for a single webhook.
type Document struct {
	Verbs []Verb
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

func (d *Document) Say(text string, voice Voice) *Document {
	d.Verbs = append(d.Verbs, Say{Text: text, Voice: voice})
	return d
}

func (d *Document) Pause(seconds int) *Document {
	d.Verbs = append(d.Verbs, Pause{Seconds: seconds})
	return d
}

func (d *Document) Gather(g Gather) *Document {
	d.Verbs = append(d.Verbs, g)
	return d
}

func (d *Document) Redirect(target Target) *Document {
	d.Verbs = append(d.Verbs, Redirect{Target: target})
	return d
}

func (d *Document) Hangup() *Document {
	d.Verbs = append(d.Verbs, Hangup{})
	return d
}

// Terminal reports whether the document ends the call.
func (d *Document) Terminal() bool {
	if d == nil || len(d.Verbs) == 0 {
		return false
	}
	_, ok := d.Verbs[len(d.Verbs)-1].(Hangup)
	return ok
}

// Next returns the endpoint the gateway will call after this document, either
// through the first Gather's action or a Redirect, and false when the
// document hangs up without either.
func (d *Document) Next() (Target, bool) {
	if d == nil {
		return Target{}, false
	}
	for _, v := range d.Verbs {
		switch verb := v.(type) {
		case Gather:
			return verb.Action, true
		case Redirect:
			return verb.Target, true
		case Hangup:
			return Target{}, false
		}
	}
	return Target{}, false
}

// Spoken concatenates every phrase the document will speak, including gather
// prompts, in order.
func (d *Document) Spoken() []string {
	if d == nil {
		return nil
	}
	var out []string
	for _, v := range d.Verbs {
		switch verb := v.(type) {
		case Say:
			out = append(out, verb.Text)
		case Gather:
			for _, p := range verb.Prompts {
				out = append(out, p.Text)
			}
		}
	}
	return out
}
