// Package httpproxy implements the forward HTTP/HTTPS proxy agent clients
// reach via HTTP_PROXY/HTTPS_PROXY (spec §4.G): plain absolute-URI requests
// and CONNECT tunneling, both gated through the Consent Gate unless a
// recent approval-token grants a grace window.
package httpproxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/adapter/inbound/httpmw"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/token"
	"github.com/Sentinel-Gate/acp-gate/internal/telemetry"
)

// connectTimeout bounds the upstream TCP dial for CONNECT tunnels (spec
// §4.G step 4). A dial that exceeds it is reported as 504; a refused dial
// is reported as 502.
const connectTimeout = 30 * time.Second

// Gate is the subset of the Consent Gate the proxy depends on.
type Gate interface {
	Decide(ctx context.Context, a action.Action) action.Verdict
}

// Proxy is the inbound HTTP forward-proxy adapter.
type Proxy struct {
	gate      Gate
	tokens    token.Store
	logger    *slog.Logger
	transport http.RoundTripper
	metrics   *telemetry.Metrics
}

// New builds a Proxy.
func New(gate Gate, tokens token.Store, logger *slog.Logger) *Proxy {
	return &Proxy{
		gate:      gate,
		tokens:    tokens,
		logger:    logger,
		transport: http.DefaultTransport,
	}
}

// SetMetrics attaches Prometheus collectors for tunnel gauges/counters.
// Optional: a Proxy with no metrics attached still forwards and tunnels
// normally.
func (p *Proxy) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

// ServeHTTP dispatches CONNECT requests to the tunneling path and
// everything else to the plain forwarding path.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.handlePlain(w, r)
}

// handlePlain implements spec §4.G "Plain HTTP".
func (p *Proxy) handlePlain(w http.ResponseWriter, r *http.Request) {
	target, err := absoluteURL(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if p.tokens.AnyValid(r.Context()) {
		p.forward(w, r, target)
		return
	}

	host, port := hostAndPort(target)
	a := action.Action{
		Name:   "http:" + r.Method,
		Args:   target.String(),
		Kind:   action.KindHTTP,
		Host:   host,
		Method: r.Method,
		Port:   port,
	}

	verdict, err := p.decideSafely(r.Context(), a)
	if err != nil {
		httpmw.LoggerFromContext(r.Context(), p.logger).Error("proxy: gate fault", "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if !verdict.Allowed() {
		writeJSONError(w, http.StatusForbidden, "Blocked by ACP", verdict.Reason)
		return
	}

	p.forward(w, r, target)
}

// forward copies the request to the upstream target and streams the
// response back, stripping hop-by-hop Proxy-Connection (spec §4.G step 4).
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, target *url.URL) {
	outReq := r.Clone(r.Context())
	outReq.URL = target
	outReq.RequestURI = ""
	outReq.Header.Del("Proxy-Connection")

	resp, err := p.transport.RoundTrip(outReq)
	if err != nil {
		httpmw.LoggerFromContext(r.Context(), p.logger).Warn("proxy: upstream request failed", "host", target.Host, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// decideSafely wraps gate.Decide with panic recovery: a faulting gate must
// surface as a 502 to the agent client, not crash the proxy.
func (p *Proxy) decideSafely(ctx context.Context, a action.Action) (v action.Verdict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return p.gate.Decide(ctx, a), nil
}

// absoluteURL resolves the request's target URL: the request line carries
// one directly for true proxy requests, otherwise it is constructed from
// the Host header (spec §4.G step 1).
func absoluteURL(r *http.Request) (*url.URL, error) {
	if r.URL.IsAbs() {
		return r.URL, nil
	}
	host := r.Host
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	u := *r.URL
	u.Scheme = "http"
	u.Host = host
	return &u, nil
}

// hostAndPort splits a URL's host into hostname and port, defaulting the
// port by scheme.
func hostAndPort(u *url.URL) (string, int) {
	host := u.Hostname()
	if portStr := u.Port(); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			return host, port
		}
	}
	if u.Scheme == "https" {
		return host, 443
	}
	return host, 80
}

func writeJSONError(w http.ResponseWriter, status int, errMsg, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, fmt.Sprintf(`{"error":%q,"reason":%q}`, errMsg, reason))
}

// splitHostPort parses a CONNECT target "host:port", defaulting port when
// absent (spec §4.G step 1 of the HTTPS flow).
func splitHostPort(hostPort string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return strings.TrimSpace(hostPort), defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
