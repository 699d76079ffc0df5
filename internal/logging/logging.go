package logging

import (
	"time"

	"cardsite-backend/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// L is the process-wide logger. It is usable before Init with logrus defaults.
var L = logrus.New()

func Init(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		L.SetFormatter(&logrus.JSONFormatter{})
	} else {
		L.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch cfg.LogLevel {
	case "debug":
		L.SetLevel(logrus.DebugLevel)
	case "warn":
		L.SetLevel(logrus.WarnLevel)
	case "error":
		L.SetLevel(logrus.ErrorLevel)
	default:
		L.SetLevel(logrus.InfoLevel)
	}
}

// RequestLogger logs one entry per request after the handler chain ran.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		entry := L.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
			"ip":         c.IP(),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
		return err
	}
}
