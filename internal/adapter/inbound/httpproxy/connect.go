package httpproxy

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/Sentinel-Gate/acp-gate/internal/adapter/inbound/httpmw"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/telemetry"
)

// handleConnect implements spec §4.G "HTTPS tunneling" and the CONNECT
// tunnel state machine (Opening -> Authorizing -> Connecting -> Open ->
// Closed).
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	state := stateOpening
	logger := httpmw.LoggerFromContext(r.Context(), p.logger)

	host, port := splitHostPort(r.Host, 443)
	state = stateAuthorizing

	if !p.tokens.AnyValid(r.Context()) {
		a := action.Action{
			Name:   "http:CONNECT",
			Args:   net.JoinHostPort(host, strconv.Itoa(port)),
			Kind:   action.KindHTTP,
			Host:   host,
			Method: "CONNECT",
			Port:   port,
		}
		verdict, err := p.decideSafely(r.Context(), a)
		if err != nil {
			logger.Error("proxy: gate fault on CONNECT", "error", err, "host", host)
			http.Error(w, "bad gateway", http.StatusBadGateway)
			state = stateClosed
			return
		}
		if !verdict.Allowed() {
			logger.Info("proxy: CONNECT denied", "host", host, "reason", verdict.Reason)
			http.Error(w, "forbidden", http.StatusForbidden)
			state = stateClosed
			return
		}
	}

	state = stateConnecting
	targetConn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), connectTimeout)
	if err != nil {
		state = stateClosed
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
			return
		}
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		state = stateClosed
		_ = targetConn.Close()
		http.Error(w, "hijack not supported", http.StatusInternalServerError)
		return
	}
	clientConn, buf, err := hijacker.Hijack()
	if err != nil {
		state = stateClosed
		_ = targetConn.Close()
		return
	}

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		state = stateClosed
		_ = clientConn.Close()
		_ = targetConn.Close()
		return
	}
	state = stateOpen

	// Flush any bytes the client already sent that are sitting in the
	// hijacked bufio.Reader before the bidirectional splice begins.
	if buf != nil && buf.Reader.Buffered() > 0 {
		if _, err := io.CopyN(targetConn, buf.Reader, int64(buf.Reader.Buffered())); err != nil {
			state = stateClosed
			_ = clientConn.Close()
			_ = targetConn.Close()
			return
		}
	}

	// Idle timeout is intentionally not set on either connection: long-poll
	// style tunnels (bot APIs) must survive an open tunnel with no traffic.
	if p.metrics != nil {
		p.metrics.TunnelsActive.Inc()
		defer p.metrics.TunnelsActive.Dec()
	}
	splice(clientConn, targetConn, p.metrics)
	state = stateClosed
	logger.Debug("proxy: CONNECT tunnel closed", "host", host, "state", state.String())
}

// splice relays bytes bidirectionally until either side closes; closing one
// half's write side lets the other direction's io.Copy observe EOF and
// return, after which both connections are closed.
func splice(clientConn, targetConn net.Conn, metrics *telemetry.Metrics) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, _ := io.Copy(targetConn, clientConn)
		if metrics != nil {
			metrics.TunnelBytesTotal.WithLabelValues("client_to_target").Add(float64(n))
		}
		if tc, ok := targetConn.(interface{ CloseWrite() error }); ok {
			_ = tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		n, _ := io.Copy(clientConn, targetConn)
		if metrics != nil {
			metrics.TunnelBytesTotal.WithLabelValues("target_to_client").Add(float64(n))
		}
		if tc, ok := clientConn.(interface{ CloseWrite() error }); ok {
			_ = tc.CloseWrite()
		}
	}()

	wg.Wait()
	_ = clientConn.Close()
	_ = targetConn.Close()
}

