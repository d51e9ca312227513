// Package bwapi is the client for the game's localhost web API, plus the
// pure derivations (ratings, toon summaries, the last-100 profile summary)
// computed from its responses.
package bwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"bw-companion/internal/constants"
	"bw-companion/internal/gateway"

	"github.com/valyala/fasthttp"
)

// APIError is the single error kind surfaced by fetch operations.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// API is the client surface the pipeline consumes; satisfied by *Client.
type API interface {
	Port() uint16
	GetToonInfo(ctx context.Context, name string, gw uint16) (*ToonInfo, error)
	GetMmGameLoading(ctx context.Context, name string, gw uint16) (*MmGameLoading, error)
	GetScrProfile(ctx context.Context, name string, gw uint16) (*ScrProfile, error)
	GetMatchmakerPlayerInfo(ctx context.Context, matchID string) (*MatchmakerPlayerInfo, error)
	OpponentToonsSummary(ctx context.Context, name string, gw uint16) ([]ToonRating, error)
}

// Client talks to the web API the game serves on a localhost port. The port
// changes across game restarts, so a Client is rebuilt whenever detection
// observes a new one.
type Client struct {
	baseURL string
	port    uint16
	http    *fasthttp.Client
}

func NewClient(port uint16) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		port:    port,
		http: &fasthttp.Client{
			MaxConnsPerHost:     8,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// Port returns the localhost port this client was built against.
func (c *Client) Port() uint16 {
	return c.port
}

func (c *Client) GetToonInfo(ctx context.Context, name string, gw uint16) (*ToonInfo, error) {
	u, err := c.auroraURL(name, gw, "scr_tooninfo")
	if err != nil {
		return nil, err
	}
	return doRequest[ToonInfo](ctx, c, "toon info", u)
}

func (c *Client) GetMmGameLoading(ctx context.Context, name string, gw uint16) (*MmGameLoading, error) {
	u, err := c.auroraURL(name, gw, "scr_mmgameloading")
	if err != nil {
		return nil, err
	}
	return doRequest[MmGameLoading](ctx, c, "mm game loading", u)
}

func (c *Client) GetScrProfile(ctx context.Context, name string, gw uint16) (*ScrProfile, error) {
	u, err := c.auroraURL(name, gw, "scr_profile")
	if err != nil {
		return nil, err
	}
	return doRequest[ScrProfile](ctx, c, "scr profile", u)
}

func (c *Client) GetMatchmakerPlayerInfo(ctx context.Context, matchID string) (*MatchmakerPlayerInfo, error) {
	u := fmt.Sprintf("%s/web-api/v2/matchmaker-player-info/%s", c.baseURL, url.PathEscape(matchID))
	return doRequest[MatchmakerPlayerInfo](ctx, c, "matchmaker player info", u)
}

// OpponentToonsSummary fetches the opponent's mm-game-loading view and
// reduces it to rated toons, best rating first.
func (c *Client) OpponentToonsSummary(ctx context.Context, name string, gw uint16) ([]ToonRating, error) {
	data, err := c.GetMmGameLoading(ctx, name, gw)
	if err != nil {
		return nil, err
	}
	return SummarizeToons(data.MatchmakedCurrentSeason, data.MatchmakedStats, data.ToonGUIDByGateway, ""), nil
}

func (c *Client) auroraURL(name string, gw uint16, flags string) (string, error) {
	if _, err := gateway.Map(gw); err != nil {
		return "", &APIError{Op: "resolve gateway", Err: err}
	}
	return fmt.Sprintf("%s/web-api/v2/aurora-profile-by-toon/%s/%d?request_flags=%s",
		c.baseURL, url.PathEscape(name), gw, flags), nil
}

func doRequest[T any](ctx context.Context, client *Client, op, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := client.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, &APIError{Op: op, Err: err}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &APIError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &APIError{Op: op, Err: err}
	}
	return &result, nil
}
