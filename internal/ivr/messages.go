package ivr

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/caresync/telehealth-ivr/internal/telephony"
)

// Language is a supported caller language. The zero value means the caller
// has not chosen one yet.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"

	DefaultLanguage = English
)

// MessageKey names a prompt in the per-language tables.
type MessageKey string

const (
	MsgWelcome              MessageKey = "welcome"
	MsgBookAppointment      MessageKey = "bookAppointment"
	MsgAskDoctorName        MessageKey = "askDoctorName"
	MsgAskDate              MessageKey = "askDate"
	MsgAskTime              MessageKey = "askTime"
	MsgCheckingAvailability MessageKey = "checkingAvailability"
	MsgAppointmentConfirmed MessageKey = "appointmentConfirmed"
	MsgSlotNotAvailable     MessageKey = "slotNotAvailable"
	MsgNoSlotsAvailable     MessageKey = "noSlotsAvailable"
	MsgThankYou             MessageKey = "thankYou"
	MsgNotLoggedIn          MessageKey = "notLoggedIn"
	MsgInvalidInput         MessageKey = "invalidInput"
	MsgDoctorNotFound       MessageKey = "doctorNotFound"
	MsgProcessingError      MessageKey = "processingError"
	MsgReminder             MessageKey = "reminder"
	MsgConfirmReminder      MessageKey = "confirmReminder"
	MsgRescheduleInfo       MessageKey = "rescheduleInfo"
	MsgReminderError        MessageKey = "reminderError"
)

// MessageKeys lists every key a complete language table must define.
var MessageKeys = []MessageKey{
	MsgWelcome, MsgBookAppointment, MsgAskDoctorName, MsgAskDate, MsgAskTime,
	MsgCheckingAvailability, MsgAppointmentConfirmed, MsgSlotNotAvailable,
	MsgNoSlotsAvailable, MsgThankYou, MsgNotLoggedIn, MsgInvalidInput,
	MsgDoctorNotFound, MsgProcessingError, MsgReminder, MsgConfirmReminder,
	MsgRescheduleInfo, MsgReminderError,
}

// Vars are placeholder values, keyed without braces ("doctorName").
type Vars map[string]string

// Catalog holds the spoken prompts and TTS voice of each language. Lookups
// for a missing language or key fall back to the fallback language.
type Catalog struct {
	mu       sync.RWMutex
	fallback Language
	tables   map[Language]map[MessageKey]string
	voices   map[Language]telephony.Voice
}

func NewCatalog(fallback Language) *Catalog {
	return &Catalog{
		fallback: fallback,
		tables:   make(map[Language]map[MessageKey]string),
		voices:   make(map[Language]telephony.Voice),
	}
}

// Register adds or replaces a language table. An incomplete table is still
// registered, with its gaps served from the fallback; the returned error
// lists the missing keys.
func (c *Catalog) Register(lang Language, voice telephony.Voice, table map[MessageKey]string) error {
	copied := make(map[MessageKey]string, len(table))
	for k, v := range table {
		copied[k] = v
	}
	c.mu.Lock()
	c.tables[lang] = copied
	c.voices[lang] = voice
	c.mu.Unlock()
	return missingKeys(lang, copied)
}

// Validate reports every language table that lacks a required key.
func (c *Catalog) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.tables[c.fallback]; !ok {
		return fmt.Errorf("ivr: fallback language %q has no messages", c.fallback)
	}
	langs := make([]string, 0, len(c.tables))
	for lang := range c.tables {
		langs = append(langs, string(lang))
	}
	sort.Strings(langs)
	var problems []string
	for _, lang := range langs {
		if err := missingKeys(Language(lang), c.tables[Language(lang)]); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("ivr: incomplete message tables: %s", strings.Join(problems, "; "))
	}
	return nil
}

func missingKeys(lang Language, table map[MessageKey]string) error {
	var missing []string
	for _, k := range MessageKeys {
		if strings.TrimSpace(table[k]) == "" {
			missing = append(missing, string(k))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%s missing %s", lang, strings.Join(missing, ", "))
}

// Supports reports whether lang has a registered table.
func (c *Catalog) Supports(lang Language) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[lang]
	return ok
}

// Voice returns the TTS voice for lang, or the fallback's voice.
func (c *Catalog) Voice(lang Language) telephony.Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.voices[lang]; ok {
		return v
	}
	return c.voices[c.fallback]
}

// Text renders key in lang with vars substituted for {name} placeholders.
func (c *Catalog) Text(lang Language, key MessageKey, vars Vars) string {
	c.mu.RLock()
	text := c.tables[lang][key]
	if text == "" {
		text = c.tables[c.fallback][key]
	}
	c.mu.RUnlock()
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Say builds a Say verb for key in lang. When lang's table lacks the key the
// fallback voice is used so the text and voice stay in the same language.
func (c *Catalog) Say(lang Language, key MessageKey, vars Vars) telephony.Say {
	c.mu.RLock()
	_, has := c.tables[lang][key]
	c.mu.RUnlock()
	voiceLang := lang
	if !has {
		voiceLang = c.fallback
	}
	return telephony.Say{Text: c.Text(lang, key, vars), Voice: c.Voice(voiceLang)}
}

// DefaultCatalog returns the English and Hindi prompts.
func DefaultCatalog() *Catalog {
	c := NewCatalog(DefaultLanguage)
	_ = c.Register(English, telephony.Voice{Name: "Polly.Joanna", Language: "en-US"}, englishMessages)
	_ = c.Register(Hindi, telephony.Voice{Name: "Polly.Aditi", Language: "hi-IN"}, hindiMessages)
	return c
}

var englishMessages = map[MessageKey]string{
	MsgWelcome:              "Welcome to CareSync Healthcare. Press 1 for English. Press 2 for Hindi.",
	MsgBookAppointment:      "Would you like to book an appointment? Press 1 for Yes. Press 2 for No.",
	MsgAskDoctorName:        "Please say the doctor name. For testing, you can also press 1 for vinayak or press 2 for Alok.",
	MsgAskDate:              "Please say your preferred date. Or press 1 for today, 2 for tomorrow.",
	MsgAskTime:              "Please say your preferred time. Or press 1 for 10 AM, 2 for 4 PM.",
	MsgCheckingAvailability: "Please wait while I check the availability.",
	MsgAppointmentConfirmed: "Great news! Your appointment has been confirmed with Doctor {doctorName} on {date} at {time}. You will receive a confirmation SMS shortly.",
	MsgSlotNotAvailable:     "Sorry, that slot is not available. Would you like another slot at {alternativeTime}? Press 1 for Yes. Press 2 for No.",
	MsgNoSlotsAvailable:     "Sorry, no slots are available for that date. Would you like to try another date? Press 1 for Yes. Press 2 to end the call.",
	MsgThankYou:             "Thank you for using CareSync Healthcare. Have a great day!",
	MsgNotLoggedIn:          "Sorry, you need to be registered in our system to book an appointment. Please visit our website to register.",
	MsgInvalidInput:         "Sorry, I did not understand. Please try again.",
	MsgDoctorNotFound:       "Sorry, I could not find a doctor named {doctorName}. Please try again.",
	MsgProcessingError:      "Sorry, there was an error processing your request. Please try again later.",
	MsgReminder:             "Hello {patientName}. This is a reminder from CareSync Healthcare. You have an appointment with Doctor {doctorName} on {date} at {time}. Press 1 to confirm your appointment. Press 2 to reschedule.",
	MsgConfirmReminder:      "Thank you for confirming. We look forward to seeing you!",
	MsgRescheduleInfo:       "Please visit our website or call again to reschedule your appointment.",
	MsgReminderError:        "Sorry, there was an error processing your reminder.",
}

var hindiMessages = map[MessageKey]string{
	MsgWelcome:              "CareSync Healthcare में आपका स्वागत है। अंग्रेजी के लिए 1 दबाएं। हिंदी के लिए 2 दबाएं।",
	MsgBookAppointment:      "क्या आप अपॉइंटमेंट बुक करना चाहते हैं? हाँ के लिए 1 दबाएं। नहीं के लिए 2 दबाएं।",
	MsgAskDoctorName:        "कृपया उस डॉक्टर का नाम बताएं जिनसे आप मिलना चाहते हैं।",
	MsgAskDate:              "कृपया अपनी पसंदीदा तारीख बताएं। जैसे, 5 फरवरी।",
	MsgAskTime:              "कृपया अपना पसंदीदा समय बताएं। जैसे, सुबह 10 बजे या दोपहर 3 बजे।",
	MsgCheckingAvailability: "कृपया प्रतीक्षा करें, मैं उपलब्धता जांच रहा हूं।",
	MsgAppointmentConfirmed: "बधाई हो! आपकी अपॉइंटमेंट डॉक्टर {doctorName} के साथ {date} को {time} पर कन्फर्म हो गई है। आपको जल्द ही SMS मिल जाएगा।",
	MsgSlotNotAvailable:     "माफ़ कीजिए, वह स्लॉट उपलब्ध नहीं है। क्या आप {alternativeTime} का स्लॉट लेना चाहेंगे? हाँ के लिए 1 दबाएं। नहीं के लिए 2 दबाएं।",
	MsgNoSlotsAvailable:     "माफ़ कीजिए, उस तारीख के लिए कोई स्लॉट उपलब्ध नहीं है। क्या आप दूसरी तारीख आज़माना चाहेंगे? हाँ के लिए 1 दबाएं। कॉल समाप्त करने के लिए 2 दबाएं।",
	MsgThankYou:             "CareSync Healthcare का उपयोग करने के लिए धन्यवाद। आपका दिन शुभ हो!",
	MsgNotLoggedIn:          "माफ़ कीजिए, अपॉइंटमेंट बुक करने के लिए आपको हमारे सिस्टम में पंजीकृत होना आवश्यक है। कृपया रजिस्टर करने के लिए हमारी वेबसाइट पर जाएं।",
	MsgInvalidInput:         "माफ़ कीजिए, मैं समझ नहीं पाया। कृपया दोबारा कोशिश करें।",
	MsgDoctorNotFound:       "माफ़ कीजिए, मुझे {doctorName} नाम का डॉक्टर नहीं मिला। कृपया दोबारा कोशिश करें।",
	MsgProcessingError:      "माफ़ कीजिए, आपके अनुरोध को प्रोसेस करने में त्रुटि हुई। कृपया बाद में पुनः प्रयास करें।",
	MsgReminder:             "नमस्ते {patientName}। यह CareSync Healthcare से एक रिमाइंडर है। आपकी डॉक्टर {doctorName} के साथ {date} को {time} पर अपॉइंटमेंट है। कन्फर्म करने के लिए 1 दबाएं। रीशेड्यूल करने के लिए 2 दबाएं।",
	MsgConfirmReminder:      "पुष्टि करने के लिए धन्यवाद। हम आपसे मिलने के लिए उत्सुक हैं!",
	MsgRescheduleInfo:       "अपनी अपॉइंटमेंट रीशेड्यूल करने के लिए कृपया हमारी वेबसाइट पर जाएं या फिर से कॉल करें।",
	MsgReminderError:        "माफ़ कीजिए, आपके रिमाइंडर को प्रोसेस करने में त्रुटि हुई।",
}
