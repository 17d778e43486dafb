package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
)

// apiRequestTimeout is the hard total timeout enforced on every outbound
// APIRequest call.
const apiRequestTimeout = 6 * time.Second

// responseReadLimit is the number of response bytes read before the
// connection is abandoned.
const responseReadLimit = 2048

var forbiddenHeaders = map[string]bool{
	http.CanonicalHeaderKey("Connection"):          true,
	http.CanonicalHeaderKey("Content-Length"):       true,
	http.CanonicalHeaderKey("Content-Type"):         true,
	http.CanonicalHeaderKey("Host"):                 true,
	http.CanonicalHeaderKey("Proxy-Authorization"):  true,
	http.CanonicalHeaderKey("Proxy-Connection"):     true,
	http.CanonicalHeaderKey("TE"):                   true,
	http.CanonicalHeaderKey("Transfer-Encoding"):     true,
	http.CanonicalHeaderKey("Upgrade"):               true,
	http.CanonicalHeaderKey("User-Agent"):            true,
}

var blockedNetworks = mustParseCIDRs(
	"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16",
	"::1/128", "fc00::/7", "fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, len(cidrs))
	for i, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets[i] = n
	}
	return nets
}

func isBlockedIP(ip net.IP) bool {
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// transportFactory is overridden in tests to bypass the SSRF guard
// against a loopback-bound httptest.Server; production code never
// changes it.
var transportFactory = newSafeTransport

// newSafeTransport builds an http.Transport whose DialContext resolves
// the hostname itself, rejects every private/loopback/link-local
// address, and dials the first surviving address directly — closing
// the gap between "we checked the IP" and "we connected to the IP"
// that a second DNS lookup inside net.Dial would reopen.
func newSafeTransport() *http.Transport {
	dialer := &net.Dialer{}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if isBlockedIP(ip) {
					continue
				}
				return dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			}
			return nil, fmt.Errorf("apirequest: %s resolves only to blocked addresses", host)
		},
	}
}

func safeHeaders(base map[string]string) http.Header {
	h := make(http.Header, len(base))
	for k, v := range base {
		if forbiddenHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		h.Set(k, v)
	}
	return h
}

// HandleAPIRequest implements §4.4.4: it performs the outbound call
// through the SSRF-guarded transport, stores the parsed response
// under API_RESPONSE, and cuts the branch silently on any transport
// error. botID identifies the calling bot in the outbound User-Agent;
// metrics may be nil.
func HandleAPIRequest(ctx context.Context, req flow.APIRequest, v *variables.Variables, botID int64, metrics MetricsRecorder) ([]flow.Connection, error) {
	record := func(outcome string) {
		if metrics != nil {
			metrics.APIRequest(botID, outcome)
		}
	}

	headers := safeHeaders(req.Headers)

	var bodyReader io.Reader
	if req.Body != nil {
		expanded, err := variables.ExpandData(ctx, req.Body, v, false)
		if err != nil {
			record("failure")
			return nil, err
		}
		raw, err := json.Marshal(expanded)
		if err != nil {
			record("failure")
			return nil, err
		}
		bodyReader = bytes.NewReader(raw)
		headers.Set("Content-Type", "application/json")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, apiRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(timeoutCtx, req.Method, req.URL, bodyReader)
	if err != nil {
		record("failure")
		return nil, nil
	}
	httpReq.Header = headers
	httpReq.Header.Set("User-Agent", fmt.Sprintf("ConstructorTelegramBots (constructor.exg1o.org; bot_id=%d)", botID))

	client := &http.Client{
		Transport: transportFactory(),
		Timeout:   apiRequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		record("failure")
		return nil, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		record("failure")
		return nil, nil
	}

	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		v.Add("API_RESPONSE", parsed)
	} else {
		v.Add("API_RESPONSE", string(raw))
	}

	record("success")
	return req.SourceConnections, nil
}
