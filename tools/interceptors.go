package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BDNK1/agentflow/metrics"
	"github.com/BDNK1/agentflow/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Attribute keys written by the built-in interceptors.
const (
	AttrStartedAt = "started_at"
	AttrDuration  = "duration"
	AttrApproved  = "approved"
)

// Logging logs every call and its outcome.
func Logging(l *slog.Logger) Interceptor {
	if l == nil {
		l = slog.Default()
	}
	return InterceptorFunc(func(c *Context, next Next) (any, error) {
		ctx := c.Context()
		l.InfoContext(ctx, fmt.Sprintf("Invoking tool: %s", c.Name()), "call_id", c.ID, "args", c.Args)

		start := time.Now()
		result, err := next(c)
		if err != nil {
			l.ErrorContext(ctx, fmt.Sprintf("Tool failed: %s", c.Name()),
				"call_id", c.ID,
				"duration", time.Since(start),
				"error", err)
			return result, err
		}

		l.InfoContext(ctx, fmt.Sprintf("Tool finished: %s", c.Name()),
			"call_id", c.ID,
			"duration", time.Since(start))
		return result, nil
	})
}

// Timing records started_at and duration attributes.
func Timing() Interceptor {
	return InterceptorFunc(func(c *Context, next Next) (any, error) {
		start := time.Now()
		c.Attributes[AttrStartedAt] = start
		result, err := next(c)
		c.Attributes[AttrDuration] = time.Since(start)
		return result, err
	})
}

// Metrics counts calls per tool and outcome and observes their duration.
func Metrics() Interceptor {
	metrics.Init()
	return InterceptorFunc(func(c *Context, next Next) (any, error) {
		start := time.Now()
		result, err := next(c)
		metrics.ObserveToolDuration(c.Name(), time.Since(start))
		if err != nil {
			metrics.IncToolCall(c.Name(), metrics.OutcomeError)
		} else {
			metrics.IncToolCall(c.Name(), metrics.OutcomeSuccess)
		}
		return result, err
	})
}

// Tracing wraps each call in a span. A nil tracer uses the global provider.
func Tracing(tracer trace.Tracer) Interceptor {
	if tracer == nil {
		tracer = otel.Tracer("github.com/BDNK1/agentflow/tools")
	}
	return InterceptorFunc(func(c *Context, next Next) (any, error) {
		parent := c.Context()
		ctx, span := tracer.Start(parent, "tool "+c.Name(),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("tool.name", c.Name()),
				attribute.String("tool.call_id", c.ID),
			))
		defer span.End()

		c.SetContext(ctx)
		result, err := next(c)
		c.SetContext(parent)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return result, err
	})
}

// Approver decides whether a call may run.
type Approver func(ctx context.Context, c *Context) (bool, error)

// Approval asks approve before running the named tools (every tool when none
// are named). A denied call short-circuits with a denial message as its
// result so the model can observe it.
func Approval(approve Approver, names ...string) Interceptor {
	guarded := make(map[string]bool, len(names))
	for _, n := range names {
		guarded[n] = true
	}
	return InterceptorFunc(func(c *Context, next Next) (any, error) {
		if len(guarded) > 0 && !guarded[c.Name()] {
			return next(c)
		}
		ok, err := approve(c.Context(), c)
		if err != nil {
			return nil, err
		}
		c.Attributes[AttrApproved] = ok
		if !ok {
			return fmt.Sprintf("Tool %s was denied by policy", c.Name()), nil
		}
		return next(c)
	})
}

// RateLimitConfig sets a per-tool token bucket.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" default:"60" validate:"gte=1"`
}

type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    int
	now      func() time.Time
}

// allow takes a token from the tool's bucket and reports how long to wait
// when none is left.
func (l *rateLimiter) allow(tool string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	limiter, ok := l.limiters[tool]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.limit)/60.0), l.limit)
		l.limiters[tool] = limiter
	}
	l.mu.Unlock()

	r := limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, max(wait.Round(time.Second), time.Second)
}

// RateLimit rejects calls beyond PerMinute per tool with ErrRateLimited.
func RateLimit(cfg RateLimitConfig) (Interceptor, error) {
	return rateLimit(cfg, time.Now)
}

func rateLimit(cfg RateLimitConfig, now func() time.Time) (Interceptor, error) {
	if err := runtime.InitializeConfig(&cfg, nil); err != nil {
		return nil, err
	}
	limiter := &rateLimiter{limiters: make(map[string]*rate.Limiter), limit: cfg.PerMinute, now: now}

	return InterceptorFunc(func(c *Context, next Next) (any, error) {
		if ok, wait := limiter.allow(c.Name()); !ok {
			return nil, fmt.Errorf("%w: %s, retry after %s", ErrRateLimited, c.Name(), wait)
		}
		return next(c)
	}), nil
}
