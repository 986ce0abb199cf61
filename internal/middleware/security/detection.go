package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"

	"gastos/internal/log"
)

const (
	maxURLLength  = 2048
	maxProxyHops  = 5
	reasonPath    = "probe path"
	reasonAgent   = "scanner agent"
	reasonMethod  = "method"
	reasonLength  = "url length"
	reasonForward = "forward chain"
)

var probeFragments = []string{
	"../", "..\\", "/.env", "/.git", "/.ssh", "etc/passwd",
	"wp-admin", "wp-login", "phpmyadmin", ".php",
	"<script", "javascript:", "union select", "cmd.exe",
}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}

// DetectionMetrics counts flagged requests.
type DetectionMetrics struct {
	SuspiciousRequests int64
}

// Detector flags probing traffic and resolves the client address behind
// trusted reverse proxies.
type Detector struct {
	trusted    []netip.Prefix
	suspicious atomic.Int64
}

// NewDetector trusts loopback and private ranges as proxies.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"} {
		d.trusted = append(d.trusted, netip.MustParsePrefix(cidr))
	}
	return d
}

// AddTrustedProxy trusts forwarded headers sent from cidr. Not safe to call
// once the detector serves requests.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
	}
	d.trusted = append(d.trusted, p.Masked())
	return nil
}

// Reason names the first rule r trips, or "" for ordinary traffic.
func (d *Detector) Reason(r *http.Request) string {
	switch r.Method {
	case http.MethodTrace, http.MethodConnect, "TRACK", "DEBUG":
		return reasonMethod
	}
	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, f := range probeFragments {
		if strings.Contains(target, f) {
			return reasonPath
		}
	}
	agent := strings.ToLower(r.UserAgent())
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return reasonAgent
		}
	}
	if len(r.URL.String()) > maxURLLength {
		return reasonLength
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxProxyHops {
		return reasonForward
	}
	return ""
}

// DetectSuspiciousRequest reports whether r looks like probing and counts it.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	if d.Reason(r) == "" {
		return false
	}
	d.suspicious.Add(1)
	return true
}

// Middleware logs suspicious requests and lets them through.
func (d *Detector) Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := d.Reason(r); reason != "" {
				d.suspicious.Add(1)
				logger.WarnContext(r.Context(), "Suspicious request",
					"reason", reason,
					log.FieldClientIP, d.ExtractClientIP(r),
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldUserAgent, r.UserAgent())
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractClientIP returns the peer address, or when the peer is a trusted
// proxy, the nearest untrusted hop of X-Forwarded-For (X-Real-IP as fallback).
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !d.isTrusted(peer) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !d.isTrusted(addr) {
				return addr.String()
			}
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}
	return host
}

func (d *Detector) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range d.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{SuspiciousRequests: d.suspicious.Load()}
}
