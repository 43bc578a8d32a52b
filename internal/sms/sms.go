package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a text message to one or more phone numbers.
type Sender interface {
	Send(ctx context.Context, message string, recipients ...string) error
}

// FormatPhone normalizes a number to the 255XXXXXXXXX form the gateway expects.
func FormatPhone(phone string) string {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	switch {
	case strings.HasPrefix(p, "0"):
		return "255" + p[1:]
	case strings.HasPrefix(p, "+"):
		return p[1:]
	case strings.HasPrefix(p, "255"):
		return p
	}
	return "255" + p
}

type recipient struct {
	RecipientID string `json:"recipient_id"`
	DestAddr    string `json:"dest_addr"`
}

type payload struct {
	SourceAddr   string      `json:"source_addr"`
	ScheduleTime string      `json:"schedule_time"`
	Encoding     int         `json:"encoding"`
	Message      string      `json:"message"`
	Recipients   []recipient `json:"recipients"`
}

// BeemClient sends through the Beem Africa HTTP API with basic auth.
type BeemClient struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	SourceAddr string
	HTTP       *http.Client
	Log        *zap.Logger
}

func NewBeemClient(baseURL, apiKey, secretKey, sourceAddr string, timeout time.Duration, log *zap.Logger) *BeemClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &BeemClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		SecretKey:  secretKey,
		SourceAddr: sourceAddr,
		HTTP:       &http.Client{Timeout: timeout},
		Log:        log,
	}
}

func (c *BeemClient) Send(ctx context.Context, message string, recipients ...string) error {
	if len(recipients) == 0 {
		return nil
	}
	body := payload{
		SourceAddr: c.SourceAddr,
		Message:    message,
		Recipients: make([]recipient, 0, len(recipients)),
	}
	for i, r := range recipients {
		body.Recipients = append(body.Recipients, recipient{RecipientID: strconv.Itoa(i + 1), DestAddr: FormatPhone(r)})
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.APIKey, c.SecretKey)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		c.Log.Warn("sms gateway rejected message",
			zap.Int("status", resp.StatusCode),
			zap.Int("recipients", len(recipients)),
			zap.ByteString("body", respBody))
		return fmt.Errorf("send sms: gateway returned %d", resp.StatusCode)
	}
	c.Log.Debug("sms sent", zap.Int("recipients", len(recipients)))
	return nil
}

// LogSender writes messages to the log instead of a gateway. Codes are not logged.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, message string, recipients ...string) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	for _, r := range recipients {
		log.Info("sms (log provider)", zap.String("to", FormatPhone(r)), zap.Int("length", len(message)))
	}
	return nil
}
