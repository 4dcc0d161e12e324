// Package dispatch routes decoded client requests to the configured backend
// and renders the reply, buffered or streamed, in the client's protocol.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/codec"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/metrics"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/registry"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/server"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/sse"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/stream"
)

const tracerName = "github.com/tjfontaine/polyglot-llm-bridge/internal/dispatch"

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 10 << 20

// ModelFunc extracts a model name from the request itself, e.g. its path.
// A non-empty result replaces the model named in the body.
type ModelFunc func(r *http.Request) string

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithUsageStore records one ledger row per routed request.
func WithUsageStore(s storage.UsageStore) Option {
	return func(d *Dispatcher) { d.usage = s }
}

// WithTokenCounter enables usage estimates for streams whose backend reports
// none.
func WithTokenCounter(c domain.TokenCounter) Option {
	return func(d *Dispatcher) { d.counter = c }
}

func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxBody = n
		}
	}
}

// Dispatcher holds only read-only state and is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	egress   map[domain.EgressKind]domain.Egress

	logger  *slog.Logger
	metrics *metrics.Metrics
	usage   storage.UsageStore
	counter domain.TokenCounter
	maxBody int64
	tracer  trace.Tracer
}

// New checks that every backend kind named by the registry has an adapter.
func New(reg *registry.Registry, egress map[domain.EgressKind]domain.Egress, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		registry: reg,
		egress:   egress,
		logger:   slog.Default(),
		maxBody:  DefaultMaxBodyBytes,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, name := range reg.Models() {
		route, _ := reg.Resolve(name)
		if _, ok := egress[route.Kind]; !ok {
			return nil, &domain.ConfigError{Model: name, Reason: fmt.Sprintf("no egress adapter for kind %q", route.Kind)}
		}
	}
	return d, nil
}

// Handler serves ingress's chat endpoint.
func (d *Dispatcher) Handler(ingress domain.Ingress) http.HandlerFunc {
	return d.HandlerWithModel(ingress, nil)
}

// HandlerWithModel is Handler with the model taken from modelFn when it
// yields one.
func (d *Dispatcher) HandlerWithModel(ingress domain.Ingress, modelFn ModelFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := d.newCall(w, r, ingress)
		defer call.end()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))
		if err != nil {
			call.fail(bodyError(err, d.maxBody))
			return
		}

		req, err := ingress.DecodeRequest(body)
		if err != nil {
			call.fail(err)
			return
		}
		if modelFn != nil {
			if m := modelFn(r); m != "" {
				req.Model = m
			}
		}

		req.Model = d.registry.Route(req.Model)
		if req.Model == "" {
			call.fail(domain.ErrTranslation("model is required").WithParam("model"))
			return
		}
		call.setModel(req.Model, req.Stream)

		route, ok := d.registry.Resolve(req.Model)
		if !ok {
			call.fail(domain.ErrUnknownModel(req.Model))
			return
		}
		egress := d.egress[route.Kind]
		call.setEgress(route.Kind)

		if req.Stream {
			d.stream(call, egress, req, &route)
			return
		}
		d.complete(call, egress, req, &route)
	}
}

func (d *Dispatcher) complete(call *call, egress domain.Egress, req *domain.CanonicalRequest, route *domain.RouteEntry) {
	resp, err := egress.Complete(call.ctx, req, route)
	if err != nil {
		call.fail(err)
		return
	}

	body, err := call.ingress.EncodeResponse(resp, call.meta(req.Model))
	if err != nil {
		call.fail(domain.ErrTranslation(err.Error()))
		return
	}

	call.rec.StopReason = string(resp.StopReason)
	call.rec.InputTokens = resp.Usage.InputTokens
	call.rec.OutputTokens = resp.Usage.OutputTokens
	call.rec.Status = http.StatusOK

	w := call.w
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		call.logger.Debug("client write failed", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) stream(call *call, egress domain.Egress, req *domain.CanonicalRequest, route *domain.RouteEntry) {
	sw, err := sse.NewWriter(call.w)
	if err != nil {
		call.fail(domain.ErrServer(err.Error()))
		return
	}

	src, dec, err := egress.Stream(call.ctx, req, route)
	if err != nil {
		call.fail(err)
		return
	}

	if d.metrics != nil {
		defer d.metrics.StreamStarted()()
	}

	meta := call.meta(req.Model)
	meta.IncludeUsage = req.StreamUsage
	t := &stream.Transcoder{
		Source:  src,
		Decoder: dec,
		Encoder: call.ingress.NewStreamEncoder(meta),
		Writer:  sw,
		Request: req,
		Counter: d.counter,
	}
	res, err := t.Run(call.ctx)

	call.rec.StopReason = string(res.StopReason)
	call.rec.InputTokens = res.Usage.InputTokens
	call.rec.OutputTokens = res.Usage.OutputTokens

	switch {
	case err != nil && codec.IsClientGone(err):
		call.rec.Status = codec.StatusClientClosedRequest
		call.noteError(codec.ToCanonicalError(err))
	case err != nil:
		// The client could not be written to; nothing more can be sent.
		call.rec.Status = codec.StatusClientClosedRequest
		call.noteError(err)
	case res.Err != nil:
		call.rec.Status = res.Err.HTTPStatusCode()
		call.noteError(res.Err)
	default:
		call.rec.Status = http.StatusOK
	}
}

// call carries the per-request bookkeeping shared by both reply modes.
type call struct {
	d       *Dispatcher
	w       http.ResponseWriter
	ctx     context.Context
	span    trace.Span
	ingress domain.Ingress
	logger  *slog.Logger
	start   time.Time
	rec     storage.UsageRecord
}

func (d *Dispatcher) newCall(w http.ResponseWriter, r *http.Request, ingress domain.Ingress) *call {
	api := string(ingress.APIType())
	ctx, span := d.tracer.Start(r.Context(), "bridge.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("bridge.ingress", api)),
	)
	start := time.Now()
	requestID := server.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &call{
		d:       d,
		w:       w,
		ctx:     ctx,
		span:    span,
		ingress: ingress,
		logger:  d.logger.With(slog.String("request_id", requestID), slog.String("ingress", api)),
		start:   start,
		rec: storage.UsageRecord{
			RequestID: requestID,
			Ingress:   api,
			CreatedAt: start,
		},
	}
}

func (c *call) meta(model string) domain.StreamMetadata {
	return domain.StreamMetadata{Model: model, Created: c.start.Unix()}
}

func (c *call) setModel(model string, streaming bool) {
	c.rec.Model = model
	c.rec.Streaming = streaming
	c.span.SetAttributes(
		attribute.String("bridge.model", model),
		attribute.Bool("bridge.stream", streaming),
	)
	server.AddLogField(c.ctx, "model", model)
	server.AddLogField(c.ctx, "stream", strconv.FormatBool(streaming))
}

func (c *call) setEgress(kind domain.EgressKind) {
	c.rec.Egress = string(kind)
	c.span.SetAttributes(attribute.String("bridge.egress", string(kind)))
	server.AddLogField(c.ctx, "egress", string(kind))
}

// fail renders err to a client that has not yet received headers.
func (c *call) fail(err error) {
	if codec.IsClientGone(err) || errors.Is(c.ctx.Err(), context.Canceled) {
		c.rec.Status = codec.StatusClientClosedRequest
		c.noteError(codec.ToCanonicalError(err))
		return
	}
	apiErr := codec.WriteError(c.w, c.ingress, err)
	c.rec.Status = apiErr.HTTPStatusCode()
	c.rec.StopReason = string(domain.StopReasonError)
	c.noteError(apiErr)
}

func (c *call) noteError(err error) {
	server.AddError(c.ctx, err)
	c.span.RecordError(err)
	c.span.SetStatus(codes.Error, err.Error())
}

// end emits metrics and the ledger row. Only requests that reached a backend
// route are recorded in the ledger.
func (c *call) end() {
	defer c.span.End()

	c.rec.Duration = time.Since(c.start)
	egress := c.rec.Egress
	if egress == "" {
		egress = "none"
	}

	c.span.SetAttributes(attribute.Int("http.response.status_code", c.rec.Status))
	if c.rec.StopReason != "" {
		server.AddLogField(c.ctx, "stop_reason", c.rec.StopReason)
	}
	if c.rec.InputTokens > 0 || c.rec.OutputTokens > 0 {
		server.AddLogField(c.ctx, "input_tokens", strconv.Itoa(c.rec.InputTokens))
		server.AddLogField(c.ctx, "output_tokens", strconv.Itoa(c.rec.OutputTokens))
	}

	if m := c.d.metrics; m != nil {
		m.ObserveRequest(c.rec.Ingress, egress, c.rec.Status, c.rec.Duration)
		if c.rec.Model != "" {
			m.ObserveTokens(c.rec.Model, c.rec.InputTokens, c.rec.OutputTokens)
		}
	}

	if c.d.usage == nil || c.rec.Egress == "" {
		return
	}
	if err := c.d.usage.Record(context.WithoutCancel(c.ctx), &c.rec); err != nil {
		c.logger.Warn("usage record failed", slog.String("error", err.Error()))
	}
}

func bodyError(err error, limit int64) *domain.APIError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.ErrTranslation(fmt.Sprintf("request body exceeds %d bytes", limit)).
			WithStatusCode(http.StatusRequestEntityTooLarge)
	}
	return domain.ErrTranslation("could not read request body: " + err.Error())
}
