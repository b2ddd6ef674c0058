package httpserver

import (
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/service"
)

const sessionKey = "libcirc.session"

// RequestLogger logs one line per request with metadata only.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info("http",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

// Recover converts panics into a 500 response instead of tearing down the
// connection.
func Recover(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Path()),
				)
				err = fiber.NewError(fiber.StatusInternalServerError, "internal")
			}
		}()
		return c.Next()
	}
}

// RequireSession verifies the bearer token and rebuilds the caller's session
// on every request, so role and account changes apply immediately.
func RequireSession(auth service.AuthService, signKey []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims := jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return signKey, nil
		})
		if err != nil || !tok.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		userID, err := uuid.FromString(claims.Subject)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token subject")
		}

		sess, err := auth.SessionFor(c.UserContext(), userID)
		if err != nil {
			return httpError(c, err)
		}
		c.Locals(sessionKey, sess)
		return c.Next()
	}
}

func sessionFrom(c *fiber.Ctx) model.Session {
	if sess, ok := c.Locals(sessionKey).(model.Session); ok {
		return sess
	}
	return model.Session{}
}
