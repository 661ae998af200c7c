package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/mailagent/internal/instrumentation"
)

// Client wraps the Gmail Users service for one account.
type Client struct {
	svc     *gmail.UsersService
	account string
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client for account using an already
// authenticated HTTP client. metrics may be nil.
func NewClient(ctx context.Context, account string, httpClient *http.Client, metrics *instrumentation.Metrics) (*Client, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service for account %s: %w", account, err)
	}

	return &Client{
		svc:     svc.Users,
		account: account,
		metrics: metrics,
	}, nil
}

// Account returns the account address this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// MessageSummary is one search result line.
type MessageSummary struct {
	ID       string
	ThreadID string
	Snippet  string
}

// ListMessages lists messages matching the query with pagination, fetching
// up to maxResults messages across multiple API calls if necessary.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int64) ([]*MessageSummary, error) {
	var all []*MessageSummary
	pageToken := ""

	for {
		remaining := maxResults - int64(len(all))
		if remaining <= 0 {
			break
		}

		// Gmail API has a max page size of 100.
		pageSize := remaining
		if pageSize > 100 {
			pageSize = 100
		}

		req := c.svc.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		res, err := timed(ctx, c, "list", func() (*gmail.ListMessagesResponse, error) {
			return req.Do()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			all = append(all, &MessageSummary{ID: m.Id, ThreadID: m.ThreadId})
		}

		if res.NextPageToken == "" || int64(len(all)) >= maxResults {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(all)) > maxResults {
		all = all[:maxResults]
	}

	// The list call returns ids only; fetch snippets with minimal format.
	for _, summary := range all {
		msg, err := c.svc.Messages.Get("me", summary.ID).Format("minimal").Context(ctx).Do()
		if err != nil {
			continue
		}
		summary.Snippet = msg.Snippet
	}

	return all, nil
}

// GetMessage retrieves a full message including its MIME tree.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}

	msg, err := timed(ctx, c, "get", func() (*gmail.Message, error) {
		return c.svc.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// GetMessageMetadata retrieves only the headers needed for reply threading.
func (c *Client) GetMessageMetadata(ctx context.Context, messageID string) (*gmail.Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}

	msg, err := timed(ctx, c, "get_metadata", func() (*gmail.Message, error) {
		return c.svc.Messages.Get("me", messageID).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date", "Message-ID", "References").
			Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// SendRaw sends an already base64url-encoded RFC 2822 message and returns
// the provider's message id. Sends are never retried here.
func (c *Client) SendRaw(ctx context.Context, raw string) (string, error) {
	return c.sendRaw(ctx, raw, "")
}

// SendRawInThread sends a raw message into an existing thread so replies
// stay attached to the conversation.
func (c *Client) SendRawInThread(ctx context.Context, raw, threadID string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("threadID is required")
	}
	return c.sendRaw(ctx, raw, threadID)
}

func (c *Client) sendRaw(ctx context.Context, raw, threadID string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("raw message is required")
	}

	msg := &gmail.Message{Raw: raw, ThreadId: threadID}
	sent, err := timed(ctx, c, "send", func() (*gmail.Message, error) {
		return c.svc.Messages.Send("me", msg).Context(ctx).Do()
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return sent.Id, nil
}

// ModifyLabels adds and removes labels on a message.
func (c *Client) ModifyLabels(ctx context.Context, messageID string, add, remove []string) error {
	if messageID == "" {
		return fmt.Errorf("messageID is required")
	}

	_, err := timed(ctx, c, "modify", func() (*gmail.Message, error) {
		return c.svc.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to modify labels on message %s: %w", messageID, err)
	}
	return nil
}

// MarkRead removes the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.ModifyLabels(ctx, messageID, nil, []string{"UNREAD"})
}

// timed runs an API call and records its duration and outcome.
func timed[T any](ctx context.Context, c *Client, operation string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordMailAPIOperation(ctx, operation, status, time.Since(start))

	return out, err
}
