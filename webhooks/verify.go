package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderWebhookTemplate pairs the verifier, parser and event id
// extractor one provider's callbacks need.
type ProviderWebhookTemplate struct {
	Provider  string
	Verifier  Verifier
	Parser    EventParser
	Extractor EventIDExtractor
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req Request) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req Request) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

// MailgunSignatureVerifier checks the signature block mailgun embeds in
// every event payload: hex HMAC-SHA256 of timestamp+token under the
// account signing key.
type MailgunSignatureVerifier struct {
	SigningKey string
}

func (v MailgunSignatureVerifier) Verify(_ context.Context, req Request) error {
	key := strings.TrimSpace(v.SigningKey)
	if key == "" {
		return fmt.Errorf("webhooks: mailgun signing key is required")
	}

	var payload struct {
		Signature struct {
			Timestamp string `json:"timestamp"`
			Token     string `json:"token"`
			Signature string `json:"signature"`
		} `json:"signature"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return fmt.Errorf("webhooks: decode mailgun signature block: %w", err)
	}
	sig := payload.Signature
	if sig.Timestamp == "" || sig.Token == "" || sig.Signature == "" {
		return fmt.Errorf("webhooks: mailgun signature block is incomplete")
	}

	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(sig.Timestamp + sig.Token))
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(strings.TrimSpace(sig.Signature))
	if err != nil {
		return fmt.Errorf("webhooks: decode mailgun signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

func HeaderEventIDExtractor(headers ...string) EventIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req Request) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: event id is required for dedupe")
	}
}

func ChainEventIDExtractors(extractors ...EventIDExtractor) EventIDExtractor {
	list := append([]EventIDExtractor(nil), extractors...)
	return func(req Request) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			eventID, err := extractor(req)
			if err == nil && strings.TrimSpace(eventID) != "" {
				return strings.TrimSpace(eventID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: event id is required for dedupe")
	}
}

// MailgunEventIDExtractor pulls the event id out of the payload itself;
// mailgun puts nothing useful in the headers.
func MailgunEventIDExtractor(req Request) (string, error) {
	var payload struct {
		EventData struct {
			ID string `json:"id"`
		} `json:"event-data"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return "", fmt.Errorf("webhooks: decode mailgun payload: %w", err)
	}
	if id := strings.TrimSpace(payload.EventData.ID); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("webhooks: event id is required for dedupe")
}

func NewMailgunWebhookTemplate(signingKey string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		Provider:  "mailgun",
		Verifier:  MailgunSignatureVerifier{SigningKey: strings.TrimSpace(signingKey)},
		Parser:    ParseMailgunEvents,
		Extractor: MailgunEventIDExtractor,
	}
}

func NewSendgridWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		Provider: "sendgrid",
		Verifier: HeaderHMACVerifier{
			Header:   "X-Webhook-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "base64",
		},
		Parser:    ParseSendgridEvents,
		Extractor: HeaderEventIDExtractor("X-Event-Id", "X-Twilio-Email-Event-Webhook-Timestamp"),
	}
}
