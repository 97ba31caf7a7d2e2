package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, 5*time.Second, 100)
}

func TestFlexID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string id", `"12345"`, "12345"},
		{"numeric id", `12345`, "12345"},
		{"large numeric id", `1234567890123456789`, "1234567890123456789"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexID
			if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
				t.Fatal(err)
			}
			if f.String() != tt.want {
				t.Errorf("got %q, want %q", f, tt.want)
			}
		})
	}
}

func TestChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("phone") != "+37379000001" || q.Get("chatId") != "-100123" || q.Get("limit") != "100" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"success":true,"messages":[
			{"id":99887,"senderId":"u1","senderUsername":"maya_c","senderFirstName":"Maya","text":"hi","date":"2025-11-26T08:36:07.000Z",
			 "reactions":[{"emoji":"x","count":2,"users":[{"username":"leo_b","firstName":"Leo"}]}]}
		]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).ChatMessages(context.Background(), "+37379000001", "-100123", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("got %d messages", len(resp.Messages))
	}
	m := resp.Messages[0]
	if m.ID.String() != "99887" {
		t.Errorf("id = %q", m.ID)
	}
	if len(m.Reactions) != 1 || m.Reactions[0].Users[0].Username != "leo_b" {
		t.Errorf("reactions = %+v", m.Reactions)
	}
}

func TestChatMessages_APIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"phone not registered"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ChatMessages(context.Background(), "+1", "-1", 10)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSendMessage(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/send" || r.Method != "POST" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).SendMessage(context.Background(), SendRequest{
		FromPhone:        "+37379000001",
		ToTarget:         "-100123",
		Content:          SendContent{Value: "hello there"},
		ReplyToTimestamp: "2025-11-26T08:36:07.000Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Content.Type != "text" {
		t.Errorf("content type defaulted to %q, want text", got.Content.Type)
	}
	if got.ReplyToTimestamp != "2025-11-26T08:36:07.000Z" {
		t.Errorf("replyToTimestamp = %q", got.ReplyToTimestamp)
	}
}

func TestAddReaction(t *testing.T) {
	var got ReactionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reactions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).AddReaction(context.Background(), ReactionRequest{
		Phone: "+1", ChatID: "-1", MessageTimestamp: "2025-11-26T08:36:07.000Z", Emoji: "ok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageTimestamp != "2025-11-26T08:36:07.000Z" {
		t.Errorf("timestamp = %q", got.MessageTimestamp)
	}
}

func TestShowTyping(t *testing.T) {
	var got typingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv).ShowTyping(context.Background(), "+1", "-1", 4000); err != nil {
		t.Fatal(err)
	}
	if got.Duration != 4000 {
		t.Errorf("duration = %d", got.Duration)
	}
}
