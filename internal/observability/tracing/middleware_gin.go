package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	obscontext "github.com/digiurban/billing/internal/observability/context"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "digiurban/billing/http"

// GinMiddleware opens a server span per request and tags it with the invoice
// being acted on. Operator identity is reduced to its type.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, time.Since(start))...)...)

		status := c.Writer.Status()
		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			span.RecordError(SafeError(lastErr.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func requestAttributes(c *gin.Context, route string, elapsed time.Duration) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", c.Writer.Status()),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	if id := c.Param("id"); id != "" && strings.Contains(route, "/billing/invoices/") {
		attrs = append(attrs, attribute.String("invoice.id", id))
	}
	if action := c.GetString("bulk_action"); action != "" {
		attrs = append(attrs, attribute.String("invoice.action", action))
	} else if i := strings.LastIndex(route, "/"); i >= 0 && c.Request.Method == http.MethodPost {
		if action := route[i+1:]; action != "" && !strings.HasPrefix(action, ":") {
			attrs = append(attrs, attribute.String("invoice.action", action))
		}
	}
	if format := c.Query("format"); format != "" {
		attrs = append(attrs, attribute.String("export.format", format))
	}
	if actorType, _ := obscontext.ActorFromContext(c.Request.Context()); actorType != "" {
		attrs = append(attrs, attribute.String("operator.type", actorType))
	}
	return attrs
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
