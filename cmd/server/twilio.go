package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// maxMessageLength is the Twilio body limit.
const maxMessageLength = 1600

// Messenger delivers agent replies to a WhatsApp user.
type Messenger interface {
	Configured() bool
	Send(to, body, mediaURL string) error
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioMessenger sends WhatsApp messages through the Twilio REST API.
type TwilioMessenger struct {
	api    messageCreator
	from   string
	logger zerolog.Logger
}

// NewTwilioMessenger returns an unconfigured messenger when any credential
// is missing.
func NewTwilioMessenger(accountSID, authToken, phoneNumber string, logger zerolog.Logger) *TwilioMessenger {
	m := &TwilioMessenger{logger: logger}
	if accountSID == "" || authToken == "" || phoneNumber == "" {
		return m
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	m.api = client.Api
	m.from = phoneNumber
	return m
}

func (t *TwilioMessenger) Configured() bool {
	return t != nil && t.api != nil
}

// Send sends body, with mediaURL attached when set, to the given number.
func (t *TwilioMessenger) Send(to, body, mediaURL string) error {
	if !t.Configured() {
		return fmt.Errorf("twilio client not configured")
	}

	to = formatPhoneNumber(to)
	from := formatPhoneNumber(t.from)
	body = truncateMessage(body, maxMessageLength)

	t.logger.Info().
		Str("to", to).
		Int("length", len(body)).
		Bool("media", mediaURL != "").
		Msg("sending whatsapp message")

	params := &openapi.CreateMessageParams{
		To:   &to,
		From: &from,
		Body: &body,
	}
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// truncateMessage cuts s to at most limit runes, marking the cut.
func truncateMessage(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// formatPhoneNumber normalizes a number to "whatsapp:+<digits>".
func formatPhoneNumber(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")

	var result strings.Builder
	for _, char := range phone {
		if char >= '0' && char <= '9' || char == '+' {
			result.WriteRune(char)
		}
	}
	phone = result.String()

	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return "whatsapp:" + phone
}

// plainPhoneNumber strips the channel prefix, e.g. for a billing phone.
func plainPhoneNumber(phone string) string {
	return strings.TrimPrefix(formatPhoneNumber(phone), "whatsapp:")
}
