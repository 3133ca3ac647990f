package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/caresync/telehealth-ivr/internal/callhistory"
	appconfig "github.com/caresync/telehealth-ivr/internal/config"
	"github.com/caresync/telehealth-ivr/internal/notify"
	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// BuildDialer returns the Twilio dialer, or nil when Twilio is not
// configured. Outbound endpoints then answer 503.
func BuildDialer(cfg *appconfig.Config, logger *logging.Logger) (telephony.Dialer, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.TwilioEnabled() {
		logger.Warn("twilio not configured; outbound and reminder calls disabled")
		return nil, nil
	}
	d, err := telephony.NewTwilioDialer(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: twilio dialer: %w", err)
	}
	return d, nil
}

// BuildSMSSender picks Twilio when credentials and SMS_CONFIRMATIONS allow,
// and the logging stub otherwise.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.SMSConfirmations || !cfg.TwilioEnabled() {
		return notify.NewStubSMSSender(logger)
	}
	sender, err := notify.NewTwilioSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	if err != nil {
		logger.Warn("twilio sms unavailable; using stub", "error", err)
		return notify.NewStubSMSSender(logger)
	}
	return sender
}

// BuildEmailSender selects the provider named by EMAIL_PROVIDER. Missing
// credentials degrade to the stub rather than failing startup.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
		logger.Warn("SENDGRID_API_KEY missing; using stub email sender")
	case "ses":
		if awsCfg == nil {
			logger.Warn("aws config unavailable; using stub email sender")
			break
		}
		sesCfg := awsCfg.Copy()
		if cfg.SESRegion != "" {
			sesCfg.Region = cfg.SESRegion
		}
		return notify.NewSESSender(sesv2.NewFromConfig(sesCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildCallHistory returns the DynamoDB store when CALL_HISTORY_TABLE is set
// and an in-memory store otherwise.
func BuildCallHistory(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (callhistory.Store, error) {
	if cfg.CallHistoryTable == "" || awsCfg == nil {
		return callhistory.NewMemoryStore(), nil
	}
	store, err := callhistory.NewDynamoStore(dynamodb.NewFromConfig(*awsCfg), cfg.CallHistoryTable, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: call history: %w", err)
	}
	return store, nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.CallHistoryTable != "" || cfg.EmailProvider == "ses"
}
