package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/LeventeLantos/callme-reminders/internal/delivery"
)

const (
	DefaultBaseURL        = "https://api.vapi.ai"
	DefaultAssistantModel = "gpt-3.5-turbo"
	DefaultVoiceID        = "21m00Tcm4TlvDq8ikWAM"

	systemPrompt   = "You are a reminder assistant. After delivering the reminder, say goodbye and end the call."
	endCallMessage = "Goodbye! Have a great day."

	maxErrorBody = 512
)

type VapiConfig struct {
	BaseURL        string
	APIKey         string
	PhoneNumberID  string
	AssistantModel string
	VoiceID        string
}

// VapiClient starts outbound calls that read a reminder to the callee.
type VapiClient struct {
	cfg    VapiConfig
	client *http.Client
}

var _ delivery.CallClient = (*VapiClient)(nil)

func NewVapiClient(cfg VapiConfig) (*VapiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("vapi api key must not be empty")
	}
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("vapi phone number id must not be empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AssistantModel == "" {
		cfg.AssistantModel = DefaultAssistantModel
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &VapiClient{
		cfg: cfg,
		// Deadlines come from the caller's context; this is only a backstop.
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
}

type callRequest struct {
	PhoneNumberID string       `json:"phoneNumberId"`
	Customer      customer     `json:"customer"`
	Assistant     assistant    `json:"assistant"`
	Metadata      callMetadata `json:"metadata"`
}

type customer struct {
	Number string `json:"number"`
}

type assistant struct {
	FirstMessage   string         `json:"firstMessage"`
	Model          assistantModel `json:"model"`
	Voice          voice          `json:"voice"`
	EndCallMessage string         `json:"endCallMessage"`
}

type assistantModel struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type callMetadata struct {
	IdempotencyKey string `json:"idempotencyKey"`
	ReminderID     int64  `json:"reminderId"`
}

type callResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// FirstMessage is what the assistant says when the callee picks up.
func FirstMessage(title, message string) string {
	text := fmt.Sprintf("Hello! This is your reminder about %s. %s", strings.TrimSpace(title), strings.TrimSpace(message))
	return norm.NFC.String(strings.TrimSpace(text))
}

func (c *VapiClient) InitiateCall(ctx context.Context, req delivery.CallRequest) (string, error) {
	reqBody, err := json.Marshal(callRequest{
		PhoneNumberID: c.cfg.PhoneNumberID,
		Customer:      customer{Number: req.PhoneNumber},
		Assistant: assistant{
			FirstMessage: FirstMessage(req.Title, req.Message),
			Model: assistantModel{
				Provider: "openai",
				Model:    c.cfg.AssistantModel,
				Messages: []chatMessage{{Role: "system", Content: systemPrompt}},
			},
			Voice:          voice{Provider: "11labs", VoiceID: c.cfg.VoiceID},
			EndCallMessage: endCallMessage,
		},
		Metadata: callMetadata{
			IdempotencyKey: req.IdempotencyKey,
			ReminderID:     req.ReminderID,
		},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/call", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, truncate(body))
	}

	var cr callResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, truncate(body))
	}
	if cr.ID == "" {
		return "", fmt.Errorf("missing call id in response body=%q", truncate(body))
	}

	return cr.ID, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
