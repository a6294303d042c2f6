// Package natsutil provides typed NATS publish, subscribe and request/reply
// helpers with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// RemoteError is returned by Request when the responder reported a failure.
type RemoteError struct {
	Subject string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("natsutil: %s: remote error: %s", e.Subject, e.Message)
}

// reply is the wire envelope used between Request and Respond.
type reply[T any] struct {
	Data  *T     `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func newMsg(ctx context.Context, subject string, v any) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: marshal: %w", err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := newMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Malformed messages are dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, v)
	})
}

// Request sends req to subject and waits for a Respond handler to answer.
// Without a deadline on ctx, nats.DefaultTimeout applies.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := newMsg(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	var out reply[Resp]
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return zero, fmt.Errorf("natsutil: decode reply: %w", err)
	}
	if out.Error != "" {
		return zero, &RemoteError{Subject: subject, Message: out.Error}
	}
	if out.Data == nil {
		return zero, nil
	}
	return *out.Data, nil
}

// Respond answers requests on subject with handler's result. Members of
// the same non-empty queue group share the load. A malformed request or a
// handler error is sent back as a RemoteError. NATS delivers a
// subscription's messages one at a time, so handler calls never overlap.
func Respond[Req, Resp any](nc *nats.Conn, subject, queue string, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, responder(handler))
}

// RespondConcurrent is Respond with each request handled on its own
// goroutine, at most limit at a time. Once limit requests are in flight the
// next delivery waits for one to finish. limit <= 0 means no bound.
func RespondConcurrent[Req, Resp any](nc *nats.Conn, subject, queue string, limit int, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	respond := responder(handler)
	var sem chan struct{}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}
	return nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if sem != nil {
			sem <- struct{}{}
		}
		go func() {
			if sem != nil {
				defer func() { <-sem }()
			}
			respond(msg)
		}()
	})
}

func responder[Req, Resp any](handler func(context.Context, Req) (Resp, error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		var out reply[Resp]
		var req Req
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			out.Error = "malformed request: " + err.Error()
		} else if v, err := handler(ctx, req); err != nil {
			out.Error = err.Error()
		} else {
			out.Data = &v
		}
		data, err := json.Marshal(out)
		if err != nil {
			data, _ = json.Marshal(reply[Resp]{Error: "marshal reply: " + err.Error()})
		}
		_ = msg.Respond(data)
	}
}
