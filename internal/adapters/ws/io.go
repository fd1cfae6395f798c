package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avilov/codemesh/internal/core"
)

const writeTimeout = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, ref core.ConnRef, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("ref", string(ref)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("ref", string(ref)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, ref core.ConnRef, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("ref", string(ref)).Msg("readPump closing")
		ctl.Hub.Registry.Cancel(ref)
		ctl.limiter.Forget(ref)
		// Cancel above only stops writePump; cleanup must still reach
		// the directory after the connection context is gone.
		for _, topic := range ctl.Hub.DropConnection(context.WithoutCancel(ctx), ref) {
			ctl.resyncPresence(topic)
		}
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * ctl.PingPeriod))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * ctl.PingPeriod))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "ws").Str("ref", string(ref)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * ctl.PingPeriod))
			if !ctl.limiter.Allow(ref) {
				log.Warn().Str("module", "ws").Str("ref", string(ref)).Msg("frame rate exceeded, dropping")
				continue
			}
			ctl.handleFrame(ctx, ref, c, data)
		}
	}
}
