package middlewares

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dqtran/medauth/internal/audit"
	"github.com/dqtran/medauth/internal/ratelimit"
	"github.com/dqtran/medauth/model"
)

type rateLimitBody struct {
	Error             string `json:"error"`
	Bucket            string `json:"bucket"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds"`
}

// principalFields is the minimal shape peeked out of request bodies for
// per-principal buckets. Fiber buffers the body, so reading it here leaves
// it intact for the downstream handler.
type principalFields struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
}

// RateLimitGate sits in front of every request except the operational
// whitelist. The global per-IP bucket is always consumed first; auth
// endpoints consume additional buckets before any handler runs.
type RateLimitGate struct {
	limiter     *ratelimit.Limiter
	incidentLog *audit.IncidentLog
	whitelist   map[string]struct{}
}

func (g *RateLimitGate) extractPrincipal(ctx *fiber.Ctx) string {
	var fields principalFields
	if err := json.Unmarshal(ctx.Body(), &fields); err != nil {
		return ""
	}
	return fields.UsernameOrEmail
}

// consume runs one bucket check and, on denial, writes the 429 response.
// Incident logging is best effort and never blocks the rejection.
func (g *RateLimitGate) consume(ctx *fiber.Ctx, bucket string, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	decision, err := g.limiter.TryConsume(ctx.Context(), bucket, key)
	if err != nil {
		// the limiter store being unreachable must not take the service down
		slog.Error("Rate limiter unavailable", "bucket", bucket, "error", err)
		return true, nil
	}
	if decision.Allowed {
		return true, nil
	}

	g.incidentLog.Record(ctx.Context(), model.IncidentSeverityMedium, model.IncidentCategoryRateLimit,
		fmt.Sprintf("bucket %s exhausted for key %s on %s", bucket, key, ctx.Path()))

	retryAfter := int64(decision.RetryAfter(time.Now()).Seconds())
	ctx.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	return false, ctx.Status(fiber.StatusTooManyRequests).JSON(rateLimitBody{
		Error:             "too_many_requests",
		Bucket:            bucket,
		RetryAfterSeconds: retryAfter,
	})
}

func (g *RateLimitGate) Handler() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if _, ok := g.whitelist[ctx.Path()]; ok {
			return ctx.Next()
		}

		clientIP := ctx.IP()
		if ok, err := g.consume(ctx, "global_ip", clientIP); !ok {
			return err
		}

		switch ctx.Path() {
		case "/auth/login":
			if ok, err := g.consume(ctx, "login_ip", clientIP); !ok {
				return err
			}
			if ok, err := g.consume(ctx, "login_user", g.extractPrincipal(ctx)); !ok {
				return err
			}
		case "/auth/password-reset/request":
			if ok, err := g.consume(ctx, "pwreset_request_ip", clientIP); !ok {
				return err
			}
			if ok, err := g.consume(ctx, "pwreset_request_user", g.extractPrincipal(ctx)); !ok {
				return err
			}
		case "/auth/password-reset/confirm":
			if ok, err := g.consume(ctx, "pwreset_confirm_ip", clientIP); !ok {
				return err
			}
		}
		return ctx.Next()
	}
}

func NewRateLimitGate(limiter *ratelimit.Limiter, incidentLog *audit.IncidentLog, whitelist []string) *RateLimitGate {
	skip := make(map[string]struct{}, len(whitelist))
	for _, path := range whitelist {
		skip[path] = struct{}{}
	}
	return &RateLimitGate{
		limiter:     limiter,
		incidentLog: incidentLog,
		whitelist:   skip,
	}
}
