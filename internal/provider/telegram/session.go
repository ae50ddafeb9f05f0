package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"tgproxy/internal/channel"
	"tgproxy/internal/delivery"
	logx "tgproxy/pkg/logx"
)

const (
	noBody       = "<NO BODY>"
	maxBodyBytes = 64 << 10
)

// Session performs sendMessage calls for one channel worker.
type Session struct {
	p         *Provider
	client    *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	closed    atomic.Bool
}

type apiResponse struct {
	OK     *bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// Deliver performs one sendMessage attempt.
func (s *Session) Deliver(ctx context.Context, m channel.Message) (channel.Receipt, error) {
	if s.closed.Load() {
		return channel.Receipt{}, channel.ErrNoSession
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return channel.Receipt{}, ctx.Err()
			}
			return channel.Receipt{}, delivery.NewTransient(Scheme, "rate limiter: "+err.Error(), err)
		}
	}

	form := url.Values{}
	for k, v := range m.Options() {
		form.Set(k, v)
	}
	form.Set("chat_id", s.p.chatID)
	form.Set("text", m.Text())

	actx, cancel := context.WithTimeout(ctx, s.p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, s.p.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return channel.Receipt{}, delivery.NewFatal(Scheme, "build request: "+redact(err).Error(), redact(err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s.p.log.Debug("send message", logx.String("request_id", m.RequestID()), logx.String("message", m.String()))

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return channel.Receipt{}, ctx.Err()
		}
		err = redact(err)
		return channel.Receipt{}, delivery.NewTransient(Scheme, err.Error(), err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if !delivery.Success(resp.StatusCode) {
		text := strings.TrimSpace(string(body))
		if readErr != nil || text == "" {
			text = noBody
		}
		detail := fmt.Sprintf("Status: %d. Body: %s", resp.StatusCode, text)
		return channel.Receipt{}, &delivery.Error{Kind: s.p.status.Classify(resp.StatusCode), Provider: Scheme, Detail: detail}
	}
	if readErr != nil {
		if ctx.Err() != nil {
			return channel.Receipt{}, ctx.Err()
		}
		return channel.Receipt{}, delivery.NewTransient(Scheme, "read response: "+readErr.Error(), readErr)
	}

	receipt := channel.Receipt{StatusCode: resp.StatusCode}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err == nil {
		if out.OK != nil && !*out.OK {
			return channel.Receipt{}, delivery.NewFatal(Scheme, fmt.Sprintf("Status: %d. Body: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
		}
		receipt.MessageID = out.Result.MessageID
	}
	return receipt, nil
}

// Close releases idle connections. Deliver fails with channel.ErrNoSession afterwards.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.transport.CloseIdleConnections()
	s.p.log.Debug("telegram session closed")
	return nil
}

// url.Error carries the request URL, which contains the bot token.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", strings.ToLower(ue.Op), ue.Err)
	}
	return err
}
