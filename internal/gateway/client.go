// Package gateway implements the outbound client for the Meta WhatsApp
// Cloud API (Graph API messages endpoint).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client sends WhatsApp messages through the Graph API. Credentials are
// per-call because each tenant carries its own token.
type Client struct {
	baseURL    string
	apiVersion string
	client     HTTPClient
}

// NewClient creates a Graph API client.
func NewClient(baseURL, apiVersion string, client HTTPClient) *Client {
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		client:     client,
	}
}

// SendResult contains the outcome of a successful send.
type SendResult struct {
	ProviderMessageID string
}

// ImageSend carries one image message send.
type ImageSend struct {
	PhoneNumberID string
	AccessToken   string
	Recipient     string
	ImageURL      string
	Caption       string
}

// TemplateSend carries one template message send.
type TemplateSend struct {
	PhoneNumberID string
	AccessToken   string
	Recipient     string
	TemplateName  string
	LanguageCode  string
	BodyParams    []string
}

// TextSend carries one plain text message send.
type TextSend struct {
	PhoneNumberID string
	AccessToken   string
	Recipient     string
	Body          string
}

func (c *Client) messagesURL(phoneNumberID string) string {
	return fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, phoneNumberID)
}

// SendImage delivers an image message with an optional caption.
func (c *Client) SendImage(ctx context.Context, p ImageSend) (*SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                p.Recipient,
		"type":              "image",
		"image": map[string]any{
			"link":    p.ImageURL,
			"caption": p.Caption,
		},
	}
	return c.send(ctx, p.PhoneNumberID, p.AccessToken, payload)
}

// SendTemplate delivers a pre-approved template message.
func (c *Client) SendTemplate(ctx context.Context, p TemplateSend) (*SendResult, error) {
	lang := p.LanguageCode
	if lang == "" {
		lang = "en"
	}

	template := map[string]any{
		"name":     p.TemplateName,
		"language": map[string]any{"code": lang},
	}
	if len(p.BodyParams) > 0 {
		params := make([]map[string]any, len(p.BodyParams))
		for i, v := range p.BodyParams {
			params[i] = map[string]any{"type": "text", "text": v}
		}
		template["components"] = []map[string]any{
			{"type": "body", "parameters": params},
		}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                p.Recipient,
		"type":              "template",
		"template":          template,
	}
	return c.send(ctx, p.PhoneNumberID, p.AccessToken, payload)
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, p TextSend) (*SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                p.Recipient,
		"type":              "text",
		"text":              map[string]any{"body": p.Body},
	}
	return c.send(ctx, p.PhoneNumberID, p.AccessToken, payload)
}

// sendResponse matches the Graph API messages response envelope.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) send(ctx context.Context, phoneNumberID, accessToken string, payload map[string]any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}

	resp, err := c.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    c.messagesURL(phoneNumberID),
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyResponse(resp.StatusCode, resp.Body)
	}

	var parsed sendResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return nil, fmt.Errorf("gateway: response carried no message id")
	}

	return &SendResult{ProviderMessageID: parsed.Messages[0].ID}, nil
}

// HealthCheck verifies the credential can read its own phone number object.
func (c *Client) HealthCheck(ctx context.Context, phoneNumberID, accessToken string) error {
	resp, err := c.client.Do(ctx, &HTTPRequest{
		Method: "GET",
		URL:    fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, phoneNumberID),
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
		},
	})
	if err != nil {
		return fmt.Errorf("gateway: health check request: %w", err)
	}

	if resp.StatusCode != 200 {
		return classifyResponse(resp.StatusCode, resp.Body)
	}
	return nil
}
