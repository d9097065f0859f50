package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/logging"
)

var (
	// ErrAPI is wrapped by every failed Gmail API request.
	ErrAPI = errors.New("gmail api request failed")

	// ErrInvalidWindow is returned for a negative search window.
	ErrInvalidWindow = errors.New("window days must not be negative")
)

const user = "me"

// Client wraps the Gmail Users service for one account.
type Client struct {
	svc     *gmail.UsersService
	account string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	account string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
	api     []option.ClientOption
}

// WithAccount names the account the client reads, for logs and metrics.
func WithAccount(account string) Option {
	return func(o *clientOptions) { o.account = account }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithMetrics records Gmail API calls on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithClock replaces time.Now when computing the search window.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// WithAPIOptions passes extra options to the Gmail service, such as an
// endpoint override.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(o *clientOptions) { o.api = append(o.api, opts...) }
}

// NewClient creates a Gmail client sending requests through httpClient,
// which must attach the account's OAuth token.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	o := clientOptions{
		account: "default",
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, o.api...)
	svc, err := gmail.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		account: o.account,
		logger:  logging.WithAccount(o.logger, o.account),
		metrics: o.metrics,
		now:     o.now,
	}, nil
}

// Account returns the account name this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// FetchOptions selects the messages to fetch.
type FetchOptions struct {
	// Query is a Gmail search expression. Empty matches every message in
	// the window.
	Query string

	// WindowDays limits the search to the trailing number of days. Zero
	// searches from today.
	WindowDays int

	// AllPages follows continuation tokens. Without it only the first
	// page of results is fetched.
	AllPages bool
}

// Fetch returns the decoded text body of every message matching query in
// the trailing windowDays, in listing order.
func (c *Client) Fetch(ctx context.Context, windowDays int, query string) ([]string, error) {
	bodies, err := c.FetchBodies(ctx, FetchOptions{Query: query, WindowDays: windowDays})
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(bodies))
	for i, b := range bodies {
		texts[i] = b.Text
	}
	return texts, nil
}

// FetchBodies lists the matching messages, fetches each in full and decodes
// its body. Any API or decode failure aborts the fetch.
func (c *Client) FetchBodies(ctx context.Context, opts FetchOptions) ([]Body, error) {
	if opts.WindowDays < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, opts.WindowDays)
	}
	q := BuildQuery(opts.Query, opts.WindowDays, c.now())
	log := logging.WithOperation(c.logger, "gmail.fetch")

	ids, err := c.ListMessageIDs(ctx, q, opts.AllPages)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		log.Info("no messages found", logging.Query(q))
		return []Body{}, nil
	}
	log.Debug("messages listed", logging.Query(q), logging.Count(len(ids)))

	bodies := make([]Body, 0, len(ids))
	for _, id := range ids {
		msg, err := c.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		body, err := DecodeBody(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("decoding message %s: %w", id, err)
		}
		body.Subject = HeaderValue(msg, "Subject")
		log.Debug("message fetched", slog.String("id", id), slog.String("subject", body.Subject), slog.String("kind", string(body.Kind)))
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// ListMessageIDs returns the ids of messages matching q. Only the first
// page is read unless allPages is set.
func (c *Client) ListMessageIDs(ctx context.Context, q string, allPages bool) ([]string, error) {
	ids := []string{}
	err := c.ForeachMessage(ctx, q, allPages, func(m *gmail.Message) error {
		ids = append(ids, m.Id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ForeachMessage calls fn for every listed message matching q.
func (c *Client) ForeachMessage(ctx context.Context, q string, allPages bool, fn func(*gmail.Message) error) error {
	pageToken := ""
	for {
		req := c.svc.Messages.List(user).Q(q)
		if pageToken != "" {
			req.PageToken(pageToken)
		}

		res, err := observe(ctx, c, instrumentation.OperationList, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
			return req.Context(ctx).Do()
		})
		if err != nil {
			return fmt.Errorf("%w: listing messages: %w", ErrAPI, err)
		}

		for _, m := range res.Messages {
			if err := fn(m); err != nil {
				return err
			}
		}
		if !allPages || res.NextPageToken == "" {
			return nil
		}
		pageToken = res.NextPageToken
	}
}

// GetMessage retrieves a full Gmail message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, err := observe(ctx, c, instrumentation.OperationGet, func(ctx context.Context) (*gmail.Message, error) {
		return c.svc.Messages.Get(user, messageID).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get message %s: %w", ErrAPI, messageID, err)
	}
	return msg, nil
}

// HeaderValue returns the value of the first header named name, ignoring
// case, or "".
func HeaderValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// observe runs one API call inside a client span and records its outcome.
func observe[T any](ctx context.Context, c *Client, operation string, call func(context.Context) (T, error)) (T, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation)
	start := time.Now()

	res, err := call(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, c.account, time.Since(start))
	instrumentation.EndSpan(span, err)
	return res, err
}
