// Package bridge is the HTTP client for the chat-transport bridge: fetching
// group messages and participants, and sending messages, reactions, and
// typing indicators under a per-phone identity.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to the bridge API. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// FlexID accepts message ids serialized as either JSON strings or numbers.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

type RawReactionUser struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type RawReaction struct {
	Emoji string            `json:"emoji"`
	Count int               `json:"count"`
	Users []RawReactionUser `json:"users"`
}

// RawMessage is one message as the bridge returns it.
type RawMessage struct {
	ID               FlexID        `json:"id"`
	SenderID         FlexID        `json:"senderId"`
	SenderUsername   string        `json:"senderUsername"`
	SenderFirstName  string        `json:"senderFirstName"`
	SenderLastName   string        `json:"senderLastName"`
	Text             string        `json:"text"`
	Date             string        `json:"date"`
	Reactions        []RawReaction `json:"reactions"`
	ReplyToMessageID FlexID        `json:"replyToMessageId"`
}

type MessagesResponse struct {
	Success  bool         `json:"success"`
	Error    string       `json:"error"`
	Messages []RawMessage `json:"messages"`
}

type ParticipantsResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	ChatTitle         string `json:"chatTitle"`
	ChatDescription   string `json:"chatDescription"`
	ParticipantsCount int    `json:"participantsCount"`
}

// SendContent is the message payload wrapper.
type SendContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type SendRequest struct {
	FromPhone        string      `json:"fromPhone"`
	ToTarget         string      `json:"toTarget"`
	Content          SendContent `json:"content"`
	ReplyToTimestamp string      `json:"replyToTimestamp,omitempty"`
}

type ReactionRequest struct {
	Phone            string `json:"phone"`
	ChatID           string `json:"chatId"`
	MessageTimestamp string `json:"messageTimestamp"`
	Emoji            string `json:"emoji"`
}

type typingRequest struct {
	Phone    string `json:"phone"`
	ChatID   string `json:"chatId"`
	Duration int    `json:"duration"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ChatMessages fetches up to limit recent messages for the chat, acting as
// the given phone identity.
func (c *Client) ChatMessages(ctx context.Context, phone, chatID string, limit int) (*MessagesResponse, error) {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("chatId", chatID)
	q.Set("limit", strconv.Itoa(limit))

	var resp MessagesResponse
	if err := c.get(ctx, "/chat-messages?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("chat-messages: %s", orUnknown(resp.Error))
	}
	return &resp, nil
}

// Participants fetches the group title, description, and member count.
func (c *Client) Participants(ctx context.Context, phone, chatID string) (*ParticipantsResponse, error) {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("chatId", chatID)

	var resp ParticipantsResponse
	if err := c.get(ctx, "/participants?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("participants: %s", orUnknown(resp.Error))
	}
	return &resp, nil
}

// SendMessage posts a text message, optionally as a reply.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) error {
	if req.Content.Type == "" {
		req.Content.Type = "text"
	}
	var resp statusResponse
	if err := c.post(ctx, "/messages/send", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("send message: %s", orUnknown(resp.Error))
	}
	return nil
}

// AddReaction attaches an emoji reaction to the message at the given
// bridge timestamp.
func (c *Client) AddReaction(ctx context.Context, req ReactionRequest) error {
	var resp statusResponse
	if err := c.post(ctx, "/reactions", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("add reaction: %s", orUnknown(resp.Error))
	}
	return nil
}

// ShowTyping displays a typing indicator for durationMS milliseconds.
func (c *Client) ShowTyping(ctx context.Context, phone, chatID string, durationMS int) error {
	var resp statusResponse
	if err := c.post(ctx, "/typing", typingRequest{Phone: phone, ChatID: chatID, Duration: durationMS}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("show typing: %s", orUnknown(resp.Error))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bridge http %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}
