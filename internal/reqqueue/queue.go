// Package reqqueue delivers outbound coordinator requests strictly in
// submission order over HTTP, retrying transient failures with a fixed
// backoff and classifying permanent failures per the wire status table.
//
// The queue is a mutex-guarded slice plus a buffered signal channel,
// drained by one owned worker goroutine that is the sole deliverer.
package reqqueue

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/logging"
	"github.com/oriys/taskrunner/internal/metrics"
)

// BodyType selects how a Request's Body is serialized.
type BodyType int

const (
	// BodyForm serializes Body as application/x-www-form-urlencoded,
	// preserving duplicate names and field order.
	BodyForm BodyType = iota
	// BodyXML sends RawBody verbatim as text/xml.
	BodyXML
)

// KV is one ordered name/value pair. Request query and form bodies are
// ordered sequences of KV, not maps, so duplicate names and field
// order survive all the way to the wire.
type KV struct {
	Name  string
	Value string
}

// Request is one outbound request to the coordinator.
type Request struct {
	Page     string
	Query    []KV
	Body     []KV
	BodyType BodyType
	RawBody  string // used when BodyType == BodyXML
}

// Listener receives exactly one of ServerReplied or ServerFailed per
// submitted request. ServerReplied's reader is borrowed: the queue
// closes it after the callback returns, and the listener must not
// retain it.
type Listener interface {
	ServerReplied(body io.Reader)
	ServerFailed(err error)
}

// Transport carries the coordinator's base URL and Basic-auth
// credentials. All requests use HTTP POST with a static Authorization
// header.
type Transport struct {
	ServerBaseURL string
	TokenID       string
	TokenPass     string
	Client        *http.Client
}

func (t *Transport) authHeader() string {
	raw := t.TokenID + ":" + t.TokenPass
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func (t *Transport) url(req Request) string {
	base := t.ServerBaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u := base + req.Page
	if len(req.Query) > 0 {
		u += "?" + encodeKVs(req.Query)
	}
	return u
}

func encodeKVs(kvs []KV) string {
	var b strings.Builder
	for i, kv := range kvs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

// outcome classifies one HTTP attempt for the retry policy.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryTransient
	outcomeRetryStatus
	outcomePermanent
)

// classify implements the wire status -> action table verbatim:
//
//	transport/IO error           -> retry transient
//	5xx                          -> permanent
//	400, 401, 407, 403, 411      -> permanent
//	other >= 400                 -> retry
//	< 400                        -> success
func classify(resp *http.Response, err error) outcome {
	if err != nil {
		return outcomeRetryTransient
	}
	code := resp.StatusCode
	switch {
	case code >= 500:
		return outcomePermanent
	case code == http.StatusBadRequest,
		code == http.StatusUnauthorized,
		code == http.StatusProxyAuthRequired,
		code == http.StatusForbidden,
		code == http.StatusLengthRequired:
		return outcomePermanent
	case code >= 400:
		return outcomeRetryStatus
	default:
		return outcomeSuccess
	}
}

// DefaultRetryDelay is the fixed sleep between retries of the head of
// the queue.
const DefaultRetryDelay = 10 * time.Second

type envelope struct {
	id       string
	req      Request
	listener Listener
}

// Queue is a single-worker FIFO delivering Requests to the coordinator
// in submission order.
type Queue struct {
	mu     sync.Mutex
	items  []*envelope
	signal chan struct{}
	closed bool

	transport  *Transport
	retryDelay time.Duration

	// retryLimiter guards against retry storms when an extended outage
	// piles up queued requests: it never shortens the fixed retry sleep,
	// only bounds the overall retry rate across the queue's lifetime.
	retryLimiter *rate.Limiter
}

// New returns a Queue that delivers through t. retryDelay overrides
// DefaultRetryDelay when non-zero (tests use a short delay).
func New(t *Transport, retryDelay time.Duration) *Queue {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if t.Client == nil {
		t.Client = &http.Client{}
	}
	return &Queue{
		signal:       make(chan struct{}, 1),
		transport:    t,
		retryDelay:   retryDelay,
		retryLimiter: rate.NewLimiter(rate.Every(time.Second), 30),
	}
}

// Submit appends req to the tail of the queue and wakes the worker.
// Submission order is preserved exactly.
func (q *Queue) Submit(req Request, listener Listener) {
	env := &envelope{id: uuid.NewString(), req: req, listener: listener}
	q.mu.Lock()
	closed := q.closed
	if !closed {
		q.items = append(q.items, env)
	}
	q.mu.Unlock()

	if closed {
		listener.ServerFailed(fmt.Errorf("reqqueue: submit after shutdown"))
		return
	}
	metrics.Global().RecordRequestEnqueued()
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Run drains the queue until it is shut down (or ctx is cancelled) and
// the buffer is empty. Both stop conditions are honored only after the
// buffer empties: Run keeps delivering queued items even after ctx is
// done or Shutdown has been called, stopping only once items is
// exhausted, so shutdown never abandons an accepted request.
func (q *Queue) Run(ctx context.Context) {
	for {
		env, ok := q.pop()
		if !ok {
			if q.isClosed() {
				return
			}
			select {
			case <-q.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		q.deliver(context.WithoutCancel(ctx), env)
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) pop() (*envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	env := q.items[0]
	q.items = q.items[1:]
	return env, true
}

func (q *Queue) deliver(ctx context.Context, env *envelope) {
	for {
		resp, err := q.attempt(ctx, env.req)
		switch classify(resp, err) {
		case outcomeSuccess:
			defer resp.Body.Close()
			env.listener.ServerReplied(resp.Body)
			return
		case outcomePermanent:
			if resp != nil {
				resp.Body.Close()
			}
			failure := &domain.PermanentRequestFailure{
				StatusCode: statusCode(resp),
				Status:     statusText(resp, err),
			}
			logging.Op().Warn("request queue: permanent failure", "request_id", env.id, "page", env.req.Page, "status", failure.Status)
			env.listener.ServerFailed(failure)
			metrics.Global().RecordRequestFailure()
			return
		case outcomeRetryTransient, outcomeRetryStatus:
			if resp != nil {
				resp.Body.Close()
			}
			logging.Op().Warn("request queue: retrying", "request_id", env.id, "page", env.req.Page, "status", statusText(resp, err))
			metrics.Global().RecordRequestRetry()
			// Sleep on retry regardless of ctx cancellation: shutdown
			// drains the queue to completion rather than abandoning
			// an in-flight submission mid-retry.
			<-time.After(q.retryDelay)
			_ = q.retryLimiter.Wait(context.Background())
		}
	}
}

func statusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func statusText(resp *http.Response, err error) string {
	if resp != nil {
		return resp.Status
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}

func (q *Queue) attempt(ctx context.Context, req Request) (*http.Response, error) {
	var bodyReader io.Reader
	contentType := ""
	switch req.BodyType {
	case BodyXML:
		bodyReader = strings.NewReader(req.RawBody)
		contentType = "text/xml"
	default:
		encoded := encodeKVs(req.Body)
		bodyReader = bytes.NewReader([]byte(encoded))
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.transport.url(req), bodyReader)
	if err != nil {
		return nil, &domain.TransientTransportError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", q.transport.authHeader())

	resp, err := q.transport.Client.Do(httpReq)
	if err != nil {
		return nil, &domain.TransientTransportError{Cause: err}
	}
	return resp, nil
}

// Shutdown signals the queue to stop accepting new submissions and
// wakes the worker so Run returns once the buffer is empty. It does not
// itself drain the buffer; the Run goroutine finishes delivering
// whatever was already accepted before returning.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}
