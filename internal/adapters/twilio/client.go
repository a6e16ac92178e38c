package twilio

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is Twilio's REST API root.
const DefaultBaseURL = "https://api.twilio.com"

// Client sends WhatsApp messages through one Twilio account.
type Client struct {
	httpClient *resty.Client
	accountSID string
}

// NewClient creates a new Twilio client for one account.
func NewClient(baseURL, accountSID, authToken string) (*Client, error) {
	if accountSID == "" {
		return nil, fmt.Errorf("Twilio accountSID cannot be empty")
	}
	if authToken == "" {
		return nil, fmt.Errorf("Twilio authToken cannot be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)

	log.Debug().Str("baseURL", baseURL).Str("accountSID", accountSID).Msg("Twilio client configured")

	return &Client{httpClient: client, accountSID: accountSID}, nil
}

// AccountSID returns the account this client sends from.
func (c *Client) AccountSID() string {
	return c.accountSID
}

// SendMessage posts one message. from and to are "whatsapp:+<digits>" addresses.
// Non-2xx answers are returned as *APIError.
func (c *Client) SendMessage(ctx context.Context, from, to, body string) (*MessageResource, error) {
	url := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": from,
			"To":   to,
			"Body": body,
		}).
		SetResult(&MessageResource{}).
		SetError(&APIError{}).
		Post(url)

	if err != nil {
		log.Error().Err(err).Str("url", url).Str("to", to).Msg("Twilio API: SendMessage request failed")
		return nil, fmt.Errorf("Twilio API SendMessage request failed: %w", err)
	}

	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr == nil || apiErr.Message == "" {
			apiErr = &APIError{Message: resp.String()}
		}
		apiErr.HTTPStatus = resp.StatusCode()
		log.Error().Str("url", url).Str("to", to).Int("statusCode", resp.StatusCode()).Int("code", apiErr.Code).Str("responseBody", resp.String()).Msg("Twilio API: SendMessage returned an error")
		return nil, apiErr
	}

	msg := resp.Result().(*MessageResource)
	log.Info().Str("sid", msg.SID).Str("to", to).Str("status", msg.Status).Msg("Successfully sent WhatsApp message")
	return msg, nil
}
