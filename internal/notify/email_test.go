package notify

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type fakeSendGrid struct {
	sent   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func confirmation() EmailMessage {
	return EmailMessage{
		To:       "asha@example.com",
		ToName:   "Asha Rao",
		Subject:  "Your appointment is confirmed",
		Body:     "plain",
		HTML:     "<p>html</p>",
		Category: "appointment-confirmation",
	}
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	if NewSendGridSender(SendGridConfig{FromEmail: "care@example.com"}, nil) != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestSenderDefaultsClinicName(t *testing.T) {
	s := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "care@example.com"}, nil)
	if s == nil {
		t.Fatal("expected non-nil sender")
	}
	if got := s.from.String(); got != `"CareSync Healthcare" <care@example.com>` {
		t.Errorf("unexpected from identity %q", got)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	api := &fakeSendGrid{status: http.StatusAccepted}
	s := newSendGridSender(api, SendGridConfig{FromEmail: "care@example.com"}, nil)

	if err := s.Send(context.Background(), confirmation()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.sent == nil {
		t.Fatal("expected a message to be sent")
	}
	if api.sent.From.Address != "care@example.com" || api.sent.From.Name != "CareSync Healthcare" {
		t.Errorf("unexpected from %+v", api.sent.From)
	}
	if len(api.sent.Categories) != 1 || api.sent.Categories[0] != "appointment-confirmation" {
		t.Errorf("expected category, got %v", api.sent.Categories)
	}
	if got := api.sent.Personalizations[0].To[0].Address; got != "asha@example.com" {
		t.Errorf("unexpected recipient %q", got)
	}
}

func TestSendGridSender_Errors(t *testing.T) {
	if err := (&SendGridSender{}).Send(context.Background(), confirmation()); err == nil {
		t.Error("expected error when client is nil")
	}

	rejected := newSendGridSender(&fakeSendGrid{status: http.StatusBadRequest}, SendGridConfig{}, nil)
	if err := rejected.Send(context.Background(), confirmation()); err == nil {
		t.Error("expected error on 4xx status")
	}

	boom := errors.New("dial tcp: timeout")
	failing := newSendGridSender(&fakeSendGrid{err: boom}, SendGridConfig{}, nil)
	if err := failing.Send(context.Background(), confirmation()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}

	api := &fakeSendGrid{status: http.StatusAccepted}
	msg := confirmation()
	msg.To = " "
	if err := newSendGridSender(api, SendGridConfig{}, nil).Send(context.Background(), msg); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
	if api.sent != nil {
		t.Error("nothing should be sent without a recipient")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	stub := NewStubEmailSender(nil)
	if err := stub.Send(context.Background(), confirmation()); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
	if err := stub.Send(context.Background(), EmailMessage{}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSESSender_NilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Error("expected nil sender without a client")
	}
}

func TestSESSender_Send(t *testing.T) {
	api := &fakeSES{}
	s := newSESSender(api, SESConfig{FromEmail: "care@example.com"}, nil)

	if err := s.Send(context.Background(), confirmation()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != `"CareSync Healthcare" <care@example.com>` {
		t.Errorf("unexpected from address %q", got)
	}
	if got := api.input.Destination.ToAddresses; len(got) != 1 || got[0] != "asha@example.com" {
		t.Errorf("unexpected destination %v", got)
	}
	body := api.input.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "plain" || aws.ToString(body.Html.Data) != "<p>html</p>" {
		t.Error("expected both text and html parts")
	}
	if len(api.input.EmailTags) != 1 || aws.ToString(api.input.EmailTags[0].Value) != "appointment-confirmation" {
		t.Errorf("expected category tag, got %v", api.input.EmailTags)
	}
}

func TestSESSender_PlainTextDoublesAsHTML(t *testing.T) {
	api := &fakeSES{}
	msg := confirmation()
	msg.HTML = ""
	if err := newSESSender(api, SESConfig{FromEmail: "care@example.com"}, nil).Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aws.ToString(api.input.Content.Simple.Body.Html.Data) != "plain" {
		t.Error("expected html part to fall back to the text body")
	}
}

func TestSESSender_SendError(t *testing.T) {
	api := &fakeSES{err: errors.New("throttled")}
	err := newSESSender(api, SESConfig{FromEmail: "care@example.com"}, nil).Send(context.Background(), confirmation())
	if !errors.Is(err, api.err) {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}
