// Package client talks to the task management REST API.
package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskflow/domain"
)

const requestIDHeader = "X-Request-ID"

// Client is a thin REST client. A Client bound to a token with WithToken shares the
// underlying connection pool with its parent.
type Client struct {
	http   *resty.Client
	token  string
	logger *log.Logger
	tracer trace.Tracer
}

// New creates a client for the API at baseURL.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetLogger(logger)
	return &Client{http: rc, logger: logger, tracer: otel.Tracer("taskflow/client")}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the bearer token the client sends.
func (c *Client) Token() string {
	return c.token
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type call struct {
	op         string
	method     string
	route      string
	pathParams map[string]string
	body       any
	result     any
}

func (c *Client) do(ctx context.Context, cl call) error {
	ctx, span := c.tracer.Start(ctx, "taskflow.client."+cl.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", cl.method),
			attribute.String("http.route", cl.route),
		))
	defer span.End()

	requestID := uuid.NewString()
	req := c.http.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, requestID)
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	if cl.pathParams != nil {
		req.SetPathParams(cl.pathParams)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}
	if cl.result != nil {
		req.SetResult(cl.result)
	}

	start := time.Now()
	resp, err := req.Execute(cl.method, cl.route)
	fields := log.Fields{
		"op":          cl.op,
		"method":      cl.method,
		"route":       cl.route,
		"request_id":  requestID,
		"duration_ms": durationToMillis(time.Since(start)),
	}
	if err != nil {
		failure := &domain.Failure{Kind: domain.KindNetworkError, Op: cl.op, Err: err}
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		c.logger.WithFields(fields).WithError(err).Warn("tasks.client.request")
		return failure
	}

	status := resp.StatusCode()
	fields["status"] = status
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		failure := domain.FailureFromStatus(cl.op, status, errors.New(errorMessage(resp)))
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		c.logger.WithFields(fields).WithField("kind", failure.Kind.String()).Info("tasks.client.request")
		return failure
	}
	c.logger.WithFields(fields).Debug("tasks.client.request")
	return nil
}

func errorMessage(resp *resty.Response) string {
	var body errorBody
	if raw := resp.Body(); len(raw) > 0 && sonic.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := http.StatusText(resp.StatusCode()); text != "" {
		return strings.ToLower(text)
	}
	return "status " + strconv.Itoa(resp.StatusCode())
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

func idParam(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}
