package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

var zoomTracer = otel.Tracer("teletherapy.internal.video.zoom")

// ErrMeetingGone is returned when the provider no longer knows a meeting.
var ErrMeetingGone = errors.New("video: meeting not found at provider")

// MeetingRequest is what the provider needs to schedule a meeting. Start is
// expressed in the session's local wall clock plus its timezone.
type MeetingRequest struct {
	Topic    string
	Start    time.Time
	Timezone string
	Duration int
}

// ProviderMeeting is the provider's response for a created meeting.
type ProviderMeeting struct {
	ID       int64  `json:"id"`
	Topic    string `json:"topic"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
	Status   string `json:"status"`
}

// Provider is the external video-conferencing service.
type Provider interface {
	CreateMeeting(ctx context.Context, req MeetingRequest) (*ProviderMeeting, error)
	UpdateMeeting(ctx context.Context, meetingID int64, req MeetingRequest) error
	DeleteMeeting(ctx context.Context, meetingID int64) error
}

// ZoomConfig holds server-to-server OAuth credentials.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIBase      string
	TokenURL     string
	Timeout      time.Duration
}

// ZoomClient talks to the Zoom REST API v2.
type ZoomClient struct {
	base string
	http *http.Client
}

// NewZoomClient builds a client whose transport fetches and refreshes
// account-credentials tokens.
func NewZoomClient(ctx context.Context, cfg ZoomConfig) *ZoomClient {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout
	return &ZoomClient{base: strings.TrimRight(cfg.APIBase, "/"), http: httpClient}
}

type zoomMeetingBody struct {
	Topic     string        `json:"topic,omitempty"`
	Type      int           `json:"type,omitempty"`
	StartTime string        `json:"start_time,omitempty"`
	Timezone  string        `json:"timezone,omitempty"`
	Duration  int           `json:"duration,omitempty"`
	Settings  *zoomSettings `json:"settings,omitempty"`
}

type zoomSettings struct {
	JoinBeforeHost bool `json:"join_before_host"`
	WaitingRoom    bool `json:"waiting_room"`
}

func meetingBody(req MeetingRequest, create bool) zoomMeetingBody {
	body := zoomMeetingBody{
		Topic:     req.Topic,
		StartTime: req.Start.Format("2006-01-02T15:04:05"),
		Timezone:  req.Timezone,
		Duration:  req.Duration,
	}
	if create {
		body.Type = 2 // scheduled meeting
		body.Settings = &zoomSettings{JoinBeforeHost: false, WaitingRoom: true}
	}
	return body
}

func (c *ZoomClient) CreateMeeting(ctx context.Context, req MeetingRequest) (*ProviderMeeting, error) {
	ctx, span := zoomTracer.Start(ctx, "video.zoom.create_meeting")
	defer span.End()

	var out ProviderMeeting
	if err := c.do(ctx, http.MethodPost, "/users/me/meetings", meetingBody(req, true), &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("video.meeting_id", out.ID))
	return &out, nil
}

func (c *ZoomClient) UpdateMeeting(ctx context.Context, meetingID int64, req MeetingRequest) error {
	ctx, span := zoomTracer.Start(ctx, "video.zoom.update_meeting")
	defer span.End()
	span.SetAttributes(attribute.Int64("video.meeting_id", meetingID))
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/meetings/%d", meetingID), meetingBody(req, false), nil)
}

func (c *ZoomClient) DeleteMeeting(ctx context.Context, meetingID int64) error {
	ctx, span := zoomTracer.Start(ctx, "video.zoom.delete_meeting")
	defer span.End()
	span.SetAttributes(attribute.Int64("video.meeting_id", meetingID))
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/meetings/%d", meetingID), nil, nil)
}

func (c *ZoomClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("video: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream("zoom", method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound && method != http.MethodPost {
		return ErrMeetingGone
	}
	if resp.StatusCode >= 300 {
		var zerr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &zerr)
		msg := zerr.Message
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return apperr.Upstream("zoom", fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, msg), nil)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperr.Upstream("zoom", "decode response", err)
		}
	}
	return nil
}
