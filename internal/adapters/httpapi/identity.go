package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/avilov/codemesh/internal/adapters/ws"
	"github.com/avilov/codemesh/internal/domain"
)

// identityClaims is what the identity provider puts in a bearer token.
// Subject carries the participant id.
type identityClaims struct {
	Color string `json:"color,omitempty"`
	jwt.RegisteredClaims
}

// guestPalette gives session-stable display colors to participants
// that arrive without one.
var guestPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

func colorFor(id string) string {
	var sum int
	for _, r := range id {
		sum += int(r)
	}
	return guestPalette[sum%len(guestPalette)]
}

// IdentityMiddleware resolves the participant for a request. A bearer
// token (header or ?token=) wins when tokenSecret is configured;
// otherwise a guest identity is minted once and pinned to the session
// cookie so reconnects keep their id and color.
func IdentityMiddleware(tokenSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenSecret != "" {
			if raw := bearerToken(c); raw != "" {
				p, err := parseIdentityToken(raw, tokenSecret)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
					return
				}
				c.Set(ws.IdentityKey, p)
				c.Next()
				return
			}
		}
		c.Set(ws.IdentityKey, guestIdentity(c))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	// Browsers cannot set headers on websocket dials.
	return c.Query("token")
}

func parseIdentityToken(raw, secret string) (*domain.Participant, error) {
	token, err := jwt.ParseWithClaims(raw, &identityClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse identity token: %w", err)
	}
	claims, ok := token.Claims.(*identityClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid identity claims")
	}
	color := claims.Color
	if color == "" {
		color = colorFor(claims.Subject)
	}
	return domain.NewParticipant(claims.Subject, color)
}

func guestIdentity(c *gin.Context) *domain.Participant {
	session := sessions.Default(c)
	if id, ok := session.Get("participant_id").(string); ok && id != "" {
		color, _ := session.Get("participant_color").(string)
		if p, err := domain.NewParticipant(id, color); err == nil {
			return p
		}
	}
	p := domain.NewGuestParticipant("")
	p.Color = colorFor(string(p.ID))
	session.Set("participant_id", string(p.ID))
	session.Set("participant_color", p.Color)
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "httpapi").Msg("guest session save failed")
	}
	return p
}
