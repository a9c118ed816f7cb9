package sms

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client keys for picking the verification message template. Older Android
// clients need the "<#>" SMS-retriever prefix, newer ones a deep link.
const (
	ClientIOS           = "ios"
	ClientAndroidNG     = "android-ng"
	ClientAndroid202001 = "android-2020-01"
)

// VerificationTemplates are the per-client SMS bodies; each must contain one
// %s for the verification code.
type VerificationTemplates struct {
	IOS           string
	AndroidNG     string
	Android202001 string
	Generic       string
}

// DefaultVerificationTemplates returns the stock message bodies.
func DefaultVerificationTemplates() VerificationTemplates {
	return VerificationTemplates{
		IOS:           "Your verification code is: %s",
		AndroidNG:     "<#> Your verification code is: %s",
		Android202001: "Your verification code is: %s",
		Generic:       "Your verification code is: %s",
	}
}

// TwilioSender delivers verification codes over SMS through Twilio's
// Messages API.
type TwilioSender struct {
	httpClient         *http.Client
	baseURL            string
	accountSID         string
	accountToken       string
	messagingServiceID string
	templates          VerificationTemplates
}

func NewTwilioSender(baseURL, accountSID, accountToken, messagingServiceID string, templates VerificationTemplates) *TwilioSender {
	return &TwilioSender{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:            strings.TrimSuffix(baseURL, "/"),
		accountSID:         accountSID,
		accountToken:       accountToken,
		messagingServiceID: messagingServiceID,
		templates:          templates,
	}
}

// DeliverSMSVerification sends the code to the destination number with the
// body template matching the requesting client. Returns whether Twilio
// accepted the message; a rejection is not an error.
func (s *TwilioSender) DeliverSMSVerification(ctx context.Context, destination, client, code string) (bool, error) {
	form := url.Values{}
	form.Set("MessagingServiceSid", s.messagingServiceID)
	form.Set("To", destination)
	form.Set("Body", fmt.Sprintf(s.verificationBody(client), code))

	endpoint := s.baseURL + "/2010-04-01/Accounts/" + s.accountSID + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.accountToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("send twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[Twilio] Message to %s rejected: status=%d body=%s", destination, resp.StatusCode, string(body))
		return false, nil
	}

	return true, nil
}

func (s *TwilioSender) verificationBody(client string) string {
	switch client {
	case ClientIOS:
		return s.templates.IOS
	case ClientAndroidNG:
		return s.templates.AndroidNG
	case ClientAndroid202001:
		return s.templates.Android202001
	default:
		return s.templates.Generic
	}
}
