package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// ErrEndpointNotFound is returned when LINE reports no webhook endpoint.
var ErrEndpointNotFound = errors.New("line: webhook endpoint not found")

// LineProfile is the subset of a LINE user profile the relay uses.
type LineProfile struct {
	DisplayName string
	PictureURL  string
}

// LineEndpoint is the webhook endpoint registered for the channel.
type LineEndpoint struct {
	URL    string
	Active bool
}

// LineMessenger is the messaging side of the LINE API.
type LineMessenger interface {
	Push(ctx context.Context, to string, msgs []messaging_api.MessageInterface, retryKey string) error
	Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error
	LeaveGroup(ctx context.Context, groupID string) error
	GroupMemberProfile(ctx context.Context, groupID, userID string) (LineProfile, error)
	Profile(ctx context.Context, userID string) (LineProfile, error)
	BotUserID(ctx context.Context) (string, error)
}

// LineBlobFetcher downloads the binary content of a received message.
type LineBlobFetcher interface {
	MessageContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// LineEndpointAPI reads and updates the channel's webhook endpoint.
type LineEndpointAPI interface {
	WebhookEndpoint(ctx context.Context) (LineEndpoint, error)
	SetWebhookEndpoint(ctx context.Context, url string) error
}

// LineClient adapts the LINE Messaging API SDK to the narrow interfaces
// above.
type LineClient struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

// NewLineClient creates API clients for the given channel access token.
func NewLineClient(channelToken string, client *http.Client) (*LineClient, error) {
	var api *messaging_api.MessagingApiAPI
	var err error
	if client != nil {
		api, err = messaging_api.NewMessagingApiAPI(channelToken, messaging_api.WithHTTPClient(client))
	} else {
		api, err = messaging_api.NewMessagingApiAPI(channelToken)
	}
	if err != nil {
		return nil, fmt.Errorf("line messaging api: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("line blob api: %w", err)
	}
	return &LineClient{api: api, blob: blob}, nil
}

func (c *LineClient) Push(ctx context.Context, to string, msgs []messaging_api.MessageInterface, retryKey string) error {
	_, err := c.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: msgs,
	}, retryKey)
	return err
}

func (c *LineClient) Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error {
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	})
	return err
}

func (c *LineClient) LeaveGroup(ctx context.Context, groupID string) error {
	_, err := c.api.WithContext(ctx).LeaveGroup(groupID)
	return err
}

func (c *LineClient) GroupMemberProfile(ctx context.Context, groupID, userID string) (LineProfile, error) {
	p, err := c.api.WithContext(ctx).GetGroupMemberProfile(groupID, userID)
	if err != nil {
		return LineProfile{}, err
	}
	return LineProfile{DisplayName: p.DisplayName, PictureURL: p.PictureUrl}, nil
}

func (c *LineClient) Profile(ctx context.Context, userID string) (LineProfile, error) {
	p, err := c.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return LineProfile{}, err
	}
	return LineProfile{DisplayName: p.DisplayName, PictureURL: p.PictureUrl}, nil
}

func (c *LineClient) BotUserID(ctx context.Context) (string, error) {
	info, err := c.api.WithContext(ctx).GetBotInfo()
	if err != nil {
		return "", err
	}
	return info.UserId, nil
}

// MessageContent returns the body of the blob download. The caller closes it.
func (c *LineClient) MessageContent(ctx context.Context, messageID string) (io.ReadCloser, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *LineClient) WebhookEndpoint(ctx context.Context) (LineEndpoint, error) {
	resp, body, err := c.api.WithContext(ctx).GetWebhookEndpointWithHttpInfo()
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return LineEndpoint{}, ErrEndpointNotFound
	}
	if err != nil {
		return LineEndpoint{}, err
	}
	return LineEndpoint{URL: body.Endpoint, Active: body.Active}, nil
}

func (c *LineClient) SetWebhookEndpoint(ctx context.Context, url string) error {
	_, err := c.api.WithContext(ctx).SetWebhookEndpoint(&messaging_api.SetWebhookEndpointRequest{
		Endpoint: url,
	})
	return err
}
