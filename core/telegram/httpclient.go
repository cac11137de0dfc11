package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/filmbot/core/telegram/netutil"
)

const (
	dialTimeout       = 5 * time.Second
	tlsTimeout        = 5 * time.Second
	idleConnTimeout   = 30 * time.Second
	keepAlive         = 30 * time.Second
	responseSlack     = 5 * time.Second
	transportAttempts = 3
	transportBackoff  = time.Second
)

// BuildHTTPClient returns the client telebot uses for Bot API calls. Header and
// overall timeouts leave room for a getUpdates call held open for longPoll.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	headerTimeout := longPoll + responseSlack
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   headerTimeout + dialTimeout + tlsTimeout,
		Transport: &retryTransport{base: base, attempts: transportAttempts, backoff: transportBackoff},
	}
}

// retryTransport replays requests that failed before any response arrived.
// Bodies are replayed through GetBody; requests without it are sent once.
type retryTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 1; err != nil && attempt < t.attempts && replayable && netutil.ShouldRetry(err); attempt++ {
		if d := t.backoff * time.Duration(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}

		next := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			next.Body = body
		}
		resp, err = t.base.RoundTrip(next)
	}
	return resp, err
}
