package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// fakeMailbox serves the two Gmail endpoints the client uses.
type fakeMailbox struct {
	mu       sync.Mutex
	pages    []gmail.ListMessagesResponse
	messages map[string]*gmail.Message
	queries  []string
	listErr  int
	gets     []string
}

func (f *fakeMailbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/gmail/v1/users/me/messages"
	switch {
	case r.URL.Path == prefix:
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		if f.listErr != 0 {
			http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, f.listErr)
			return
		}
		page := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			page = int(tok[len(tok)-1] - '0')
		}
		if page >= len(f.pages) {
			_ = json.NewEncoder(w).Encode(gmail.ListMessagesResponse{})
			return
		}
		_ = json.NewEncoder(w).Encode(f.pages[page])

	case strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		f.gets = append(f.gets, id)
		if r.URL.Query().Get("format") != "full" {
			http.Error(w, `{"error":{"code":400,"message":"format"}}`, http.StatusBadRequest)
			return
		}
		msg, ok := f.messages[id]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(msg)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, mailbox *fakeMailbox, logger *slog.Logger) *Client {
	t.Helper()

	srv := httptest.NewServer(mailbox)
	t.Cleanup(srv.Close)

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	c, err := NewClient(context.Background(), srv.Client(),
		WithAccount("work"),
		WithLogger(logger),
		WithClock(func() time.Time { return time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC) }),
		WithAPIOptions(option.WithEndpoint(srv.URL+"/")),
	)
	require.NoError(t, err)
	return c
}

func textMessage(id, text string) *gmail.Message {
	return &gmail.Message{Id: id, Payload: part("text/plain", enc(text))}
}

func TestFetch_NoMessages(t *testing.T) {
	var buf bytes.Buffer
	mailbox := &fakeMailbox{}
	c := newTestClient(t, mailbox, slog.New(slog.NewTextHandler(&buf, nil)))

	got, err := c.Fetch(context.Background(), 7, `from:"X" subject:"Y"`)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Equal(t, []string{`from:"X" subject:"Y" after:2024/01/01`}, mailbox.queries)
	assert.Contains(t, buf.String(), "no messages found")
	assert.Empty(t, mailbox.gets)
}

func TestFetch_DecodesInListingOrder(t *testing.T) {
	mailbox := &fakeMailbox{
		pages: []gmail.ListMessagesResponse{
			{Messages: []*gmail.Message{{Id: "m2"}, {Id: "m1"}}},
		},
		messages: map[string]*gmail.Message{
			"m1": textMessage("m1", "older"),
			"m2": textMessage("m2", "newer"),
		},
	}
	c := newTestClient(t, mailbox, nil)

	got, err := c.Fetch(context.Background(), 7, DefaultQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{"newer", "older"}, got)
	assert.Equal(t, []string{DefaultQuery + " after:2024/01/01"}, mailbox.queries)
	assert.Equal(t, "work", c.Account())
}

func TestFetch_PassesArgumentsThrough(t *testing.T) {
	tests := []struct {
		name       string
		windowDays int
		query      string
		want       string
	}{
		{name: "zero window searches from today", windowDays: 0, query: `from:"X"`, want: `from:"X" after:2024/01/08`},
		{name: "empty query has no search text", windowDays: 3, query: "", want: "after:2024/01/05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailbox := &fakeMailbox{}
			c := newTestClient(t, mailbox, nil)

			_, err := c.Fetch(context.Background(), tt.windowDays, tt.query)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, mailbox.queries)
		})
	}
}

func TestFetch_NegativeWindow(t *testing.T) {
	mailbox := &fakeMailbox{}
	c := newTestClient(t, mailbox, nil)

	_, err := c.Fetch(context.Background(), -1, DefaultQuery)
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Empty(t, mailbox.queries)
}

func TestFetchBodies_Subject(t *testing.T) {
	msg := textMessage("m1", "hello")
	msg.Payload.Headers = []*gmail.MessagePartHeader{{Name: "Subject", Value: "The Morning: Storm"}}
	mailbox := &fakeMailbox{
		pages:    []gmail.ListMessagesResponse{{Messages: []*gmail.Message{{Id: "m1"}}}},
		messages: map[string]*gmail.Message{"m1": msg},
	}
	c := newTestClient(t, mailbox, nil)

	got, err := c.FetchBodies(context.Background(), FetchOptions{WindowDays: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The Morning: Storm", got[0].Subject)
	assert.Equal(t, "hello", got[0].Text)
}

func TestFetchBodies_Pagination(t *testing.T) {
	newMailbox := func() *fakeMailbox {
		return &fakeMailbox{
			pages: []gmail.ListMessagesResponse{
				{Messages: []*gmail.Message{{Id: "a"}}, NextPageToken: "page1"},
				{Messages: []*gmail.Message{{Id: "b"}}},
			},
			messages: map[string]*gmail.Message{
				"a": textMessage("a", "first"),
				"b": textMessage("b", "second"),
			},
		}
	}

	t.Run("single page by default", func(t *testing.T) {
		mailbox := newMailbox()
		c := newTestClient(t, mailbox, nil)

		got, err := c.FetchBodies(context.Background(), FetchOptions{WindowDays: 3})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "first", got[0].Text)
		assert.Len(t, mailbox.queries, 1)
	})

	t.Run("all pages when enabled", func(t *testing.T) {
		mailbox := newMailbox()
		c := newTestClient(t, mailbox, nil)

		got, err := c.FetchBodies(context.Background(), FetchOptions{WindowDays: 3, AllPages: true})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "second", got[1].Text)
		assert.Len(t, mailbox.queries, 2)
	})
}

func TestFetch_ListError(t *testing.T) {
	c := newTestClient(t, &fakeMailbox{listErr: http.StatusForbidden}, nil)

	_, err := c.Fetch(context.Background(), 7, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
}

func TestFetch_GetErrorAborts(t *testing.T) {
	mailbox := &fakeMailbox{
		pages: []gmail.ListMessagesResponse{
			{Messages: []*gmail.Message{{Id: "gone"}, {Id: "ok"}}},
		},
		messages: map[string]*gmail.Message{"ok": textMessage("ok", "fine")},
	}
	c := newTestClient(t, mailbox, nil)

	_, err := c.Fetch(context.Background(), 7, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Equal(t, []string{"gone"}, mailbox.gets, "no further messages are fetched after a failure")
}

func TestFetch_DecodeErrorAborts(t *testing.T) {
	mailbox := &fakeMailbox{
		pages: []gmail.ListMessagesResponse{
			{Messages: []*gmail.Message{{Id: "bad"}}},
		},
		messages: map[string]*gmail.Message{
			"bad": {Id: "bad", Payload: part("text/plain", "***")},
		},
	}
	c := newTestClient(t, mailbox, nil)

	_, err := c.Fetch(context.Background(), 7, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestHeaderValue(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
		{Name: "From", Value: "The New York Times <nytdirect@nytimes.com>"},
		{Name: "Subject", Value: "The Morning: Storm"},
	}}}

	assert.Equal(t, "The Morning: Storm", HeaderValue(msg, "subject"))
	assert.Equal(t, "", HeaderValue(msg, "Date"))
	assert.Equal(t, "", HeaderValue(nil, "Subject"))
	assert.Equal(t, "", HeaderValue(&gmail.Message{}, "Subject"))
}
