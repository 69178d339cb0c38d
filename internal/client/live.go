package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
)

// WatchRanking streams live ranking snapshots of a challenge to fn until ctx
// is cancelled, the server closes the stream, or fn returns an error.
func (c *Client) WatchRanking(ctx context.Context, sess *Session, id int64, fn func(RankingSnapshot) error) error {
	u, err := url.Parse(c.baseURL + "/api/challenges/" + strconv.FormatInt(id, 10) + "/live")
	if err != nil {
		return fmt.Errorf("client: building live url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", sess.Token())
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return readAPIError(resp)
		}
		return fmt.Errorf("client: connecting to live ranking: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var snap RankingSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("client: reading live ranking: %w", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}
