// Package publisher is the outbound client for the X API v2. It posts single
// updates and linked threads, reads public engagement counts, and fabricates
// both when delivery is simulated.
//
// Every call goes through a circuit breaker and is bounded by a per-call
// timeout. Calls are never retried here; a failed publish surfaces to the
// caller, which marks the post FAILED and leaves retrying to an explicit
// request.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/observability"
)

const (
	opPost    = "post"
	opMetrics = "metrics"

	maxBodyBytes = 1 << 20
	userAgent    = "go-post-scheduler/1.0"
)

// PublishRequest is one post to deliver.
type PublishRequest struct {
	OwnerID         string
	Segments        []string // in order; each after the first replies to the previous
	Destination     string   // community id, optional
	ForceSimulation bool
	ItemID          string // post id, embedded in simulated ids
}

// PublishResult identifies what was created on the platform.
type PublishResult struct {
	ID         string   // id of the first segment; the post's external id
	SegmentIDs []string // ids of every segment that was created
	Simulated  bool
}

// Metrics is one read of public engagement counts.
type Metrics struct {
	Impressions int64
	Likes       int64
	Replies     int64
	Reposts     int64
	Bookmarks   int64
	Source      domain.MetricSource
	Error       string // diagnostic for SourceUnavailable
	Issued      bool   // a network request was sent and counts against quota
}

// Snapshot converts m into an unsaved snapshot for postID.
func (m Metrics) Snapshot(postID string, at time.Time) domain.Metric {
	return domain.Metric{
		PostID:      postID,
		Impressions: m.Impressions,
		Likes:       m.Likes,
		Replies:     m.Replies,
		Reposts:     m.Reposts,
		Bookmarks:   m.Bookmarks,
		Source:      m.Source,
		CapturedAt:  at,
	}
}

type rawResponse struct {
	status int
	body   []byte
}

// Client talks to the X API on behalf of post owners.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	creds   CredentialSource
	timeout time.Duration
	now     func() time.Time
	intn    func(n int) int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithClock overrides the time source used for simulated ids.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithRand overrides the random source used for simulated metrics.
func WithRand(intn func(n int) int) Option { return func(c *Client) { c.intn = intn } }

// New builds a Client from cfg. creds resolves owner tokens.
func New(cfg config.PublisherConfig, creds CredentialSource, opts ...Option) *Client {
	failures := uint32(max(cfg.BreakerFailures, 1))
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
		creds:   creds,
		timeout: cfg.Timeout,
		now:     time.Now,
		intn:    rand.IntN,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "x-api",
		MaxRequests: 1,
		Interval:    cfg.BreakerResetTick,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsConfigured reports whether ownerID has a usable access token.
func (c *Client) IsConfigured(ctx context.Context, ownerID string) (bool, error) {
	acct, err := c.creds.Account(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return acct.HasCredentials(), nil
}

// SimulatedID builds the synthetic external id for itemID.
func SimulatedID(at time.Time, itemID string) string {
	return fmt.Sprintf("%s%d_%s", domain.SimulatedIDPrefix, at.UnixMilli(), itemID)
}

// Publish delivers req. Simulated delivery happens when forced or when the
// owner has no usable token; it never touches the network. A real thread is
// posted segment by segment, each replying to the previous one, and stops at
// the first error.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	ctx, span := otel.Tracer("publisher").Start(ctx, "Publish",
		trace.WithAttributes(
			attribute.String("post.id", req.ItemID),
			attribute.Int("segments", len(req.Segments)),
			attribute.Bool("force_simulation", req.ForceSimulation),
		),
	)
	defer span.End()

	if len(req.Segments) == 0 {
		return PublishResult{}, ErrEmptyPayload
	}
	if req.ForceSimulation {
		return c.simulatePublish(req), nil
	}

	acct, err := c.creds.Account(ctx, req.OwnerID)
	if err != nil {
		return PublishResult{}, fmt.Errorf("load credentials: %w", err)
	}
	if !acct.HasCredentials() {
		zerolog.Ctx(ctx).Info().Str("post_id", req.ItemID).Msg("no credentials; simulating publish")
		return c.simulatePublish(req), nil
	}

	ids := make([]string, 0, len(req.Segments))
	replyTo := ""
	for i, text := range req.Segments {
		body := tweetRequest{Text: text}
		if i == 0 && req.Destination != "" {
			body.CommunityID = req.Destination
		}
		if replyTo != "" {
			body.Reply = &tweetReply{InReplyToTweetID: replyTo}
		}
		id, err := c.postTweet(ctx, acct.AccessToken, body)
		if err != nil {
			if len(req.Segments) > 1 {
				err = fmt.Errorf("thread segment %d of %d: %w", i+1, len(req.Segments), err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
			return PublishResult{SegmentIDs: ids}, err
		}
		ids = append(ids, id)
		replyTo = id
	}
	span.SetAttributes(attribute.String("tweet.id", ids[0]))
	return PublishResult{ID: ids[0], SegmentIDs: ids}, nil
}

func (c *Client) simulatePublish(req PublishRequest) PublishResult {
	id := SimulatedID(c.now(), req.ItemID)
	return PublishResult{ID: id, SegmentIDs: []string{id}, Simulated: true}
}

// FetchMetrics reads the public counts of externalID.
//
// Simulated ids get fabricated counts without a network call. A missing
// token, revoked credentials (401/403), or a deleted post (404) yield a
// zero-valued SourceUnavailable result and a nil error. Transport failures,
// an open breaker, and other non-2xx answers return an error.
func (c *Client) FetchMetrics(ctx context.Context, ownerID, externalID string) (Metrics, error) {
	ctx, span := otel.Tracer("publisher").Start(ctx, "FetchMetrics",
		trace.WithAttributes(attribute.String("tweet.id", externalID)),
	)
	defer span.End()

	if domain.IsSimulatedID(externalID) {
		return c.simulateMetrics(), nil
	}

	acct, err := c.creds.Account(ctx, ownerID)
	if err != nil {
		return Metrics{}, fmt.Errorf("load credentials: %w", err)
	}
	if !acct.HasCredentials() {
		return unavailable("No X API credentials configured", false), nil
	}

	path := "/tweets/" + url.PathEscape(externalID) + "?tweet.fields=public_metrics"
	res, err := c.do(ctx, opMetrics, http.MethodGet, path, acct.AccessToken, nil)
	if err != nil {
		span.RecordError(err)
		return Metrics{Issued: issued(err)}, err
	}

	switch {
	case res.status == http.StatusNotFound:
		return unavailable("Tweet not found (may have been deleted)", true), nil
	case res.status == http.StatusUnauthorized || res.status == http.StatusForbidden:
		return unavailable("Invalid or expired X API credentials", true), nil
	case res.status >= 300:
		err := newAPIError(opMetrics, res)
		span.RecordError(err)
		return Metrics{Issued: true}, err
	}

	var payload struct {
		Data struct {
			PublicMetrics struct {
				Impressions int64 `json:"impression_count"`
				Likes       int64 `json:"like_count"`
				Replies     int64 `json:"reply_count"`
				Reposts     int64 `json:"retweet_count"`
				Bookmarks   int64 `json:"bookmark_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return Metrics{Issued: true}, fmt.Errorf("decode metrics: %w", err)
	}
	pm := payload.Data.PublicMetrics
	return Metrics{
		Impressions: max(pm.Impressions, 0),
		Likes:       max(pm.Likes, 0),
		Replies:     max(pm.Replies, 0),
		Reposts:     max(pm.Reposts, 0),
		Bookmarks:   max(pm.Bookmarks, 0),
		Source:      domain.SourceReal,
		Issued:      true,
	}, nil
}

func (c *Client) simulateMetrics() Metrics {
	return Metrics{
		Impressions: int64(c.intn(500) + 50),
		Likes:       int64(c.intn(20)),
		Replies:     int64(c.intn(5)),
		Reposts:     int64(c.intn(5)),
		Bookmarks:   int64(c.intn(10)),
		Source:      domain.SourceSimulated,
	}
}

func unavailable(msg string, sent bool) Metrics {
	return Metrics{Source: domain.SourceUnavailable, Error: msg, Issued: sent}
}

// issued reports whether err happened after the request left the process.
func issued(err error) bool {
	return !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests)
}

type tweetRequest struct {
	Text        string      `json:"text"`
	CommunityID string      `json:"community_id,omitempty"`
	Reply       *tweetReply `json:"reply,omitempty"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

func (c *Client) postTweet(ctx context.Context, token string, body tweetRequest) (string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	res, err := c.do(ctx, opPost, http.MethodPost, "/tweets", token, b)
	if err != nil {
		return "", err
	}
	if res.status >= 300 {
		return "", newAPIError(opPost, res)
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.body, &out); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("no tweet id returned")
	}
	return out.Data.ID, nil
}

// do sends one request through the breaker. 5xx and 429 count as breaker
// failures; other statuses are returned for the caller to interpret.
func (c *Client) do(ctx context.Context, op, method, path, token string, body []byte) (*rawResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.breaker.Execute(func() (*rawResponse, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		r := &rawResponse{status: resp.StatusCode, body: b}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return r, nil
	})

	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
	case err != nil && res == nil:
		outcome = "transport_error"
	case res != nil && res.status >= 300:
		outcome = fmt.Sprintf("%dxx", res.status/100)
	}
	observability.PublisherRequests.WithLabelValues(op, outcome).Inc()

	// A 5xx/429 answer is still an answer; let the caller build an APIError.
	if err != nil && res != nil {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("x api %s: %w", op, err)
	}
	return res, nil
}

func newAPIError(op string, res *rawResponse) *APIError {
	var payload struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	detail := ""
	if json.Unmarshal(res.body, &payload) == nil {
		switch {
		case payload.Detail != "":
			detail = payload.Detail
		case len(payload.Errors) > 0 && payload.Errors[0].Message != "":
			detail = payload.Errors[0].Message
		case payload.Title != "":
			detail = payload.Title
		}
	}
	if detail == "" {
		detail = http.StatusText(res.status)
	}
	return &APIError{Op: op, StatusCode: res.status, Detail: detail}
}
