package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avilov/codemesh/internal/core"
	"github.com/avilov/codemesh/internal/domain"
	"github.com/avilov/codemesh/internal/hub"
)

// IdentityKey is where the identity middleware leaves the resolved
// participant in the gin context.
const IdentityKey = "participant"

type Controller struct {
	Hub        *hub.Hub
	ReadLimit  int64
	PingPeriod time.Duration
	SendQueue  int

	limiter *frameLimiter
}

// Inbound frame budget per connection. Generous enough for a fast
// typist's debounced snapshots plus trickle ICE bursts.
const (
	frameLimit  = 120
	frameWindow = time.Second
)

func NewController(h *hub.Hub, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Hub:        h,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		SendQueue:  32,
		limiter:    newFrameLimiter(frameLimit, frameWindow),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and binds the connection into the hub.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no identity"})
		return
	}
	participant := v.(*domain.Participant)

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	ref := core.ConnRef(uuid.NewString())
	conn := newWSConn(socket, ctl.SendQueue)
	sess := core.NewSubscriber(participant, conn)

	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Registry.Bind(ref, sess, cancel)

	log.Info().Str("module", "ws").Str("ref", string(ref)).Str("participant", string(participant.ID)).Msg("connection established")

	go ctl.writePump(ctx, ref, conn)
	go ctl.readPump(ctx, ref, conn)
}
