package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"chatlink-service/internal/errs"
)

// ImageProber checks that an image URL can be loaded and decoded.
type ImageProber interface {
	Probe(ctx context.Context, rawURL string) error
}

const maxImageRedirects = 3

var errPrivateAddress = errors.New("image host resolves to a non-public address")

// HTTPImageProber fetches the image and decodes its header. It only connects
// to public addresses; the check runs on every dial, redirects included.
type HTTPImageProber struct {
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
}

func NewHTTPImageProber(timeout time.Duration) *HTTPImageProber {
	p := &HTTPImageProber{maxBytes: 10 << 20}
	dialer := &net.Dialer{Timeout: timeout, Control: p.checkAddress}
	p.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               nil,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to %s scheme", req.URL.Scheme)
			}
			return nil
		},
	}
	return p
}

// checkAddress runs after name resolution, right before connect.
func (p *HTTPImageProber) checkAddress(network, address string, _ syscall.RawConn) error {
	if p.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !isPublicAddr(addr) {
		return errPrivateAddress
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified() &&
		!addr.IsInterfaceLocalMulticast() &&
		!cgnat.Contains(addr)
}

var cgnat = netip.MustParsePrefix("100.64.0.0/10")

func (p *HTTPImageProber) Probe(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Validation("image url must be an absolute http(s) url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errs.Validation("image url: %v", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, errPrivateAddress) {
			return errs.Validation("image url must point to a public host")
		}
		return errs.Validation("image could not be loaded")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Validation("image could not be loaded: status %d", resp.StatusCode)
	}

	if _, _, err := image.DecodeConfig(io.LimitReader(resp.Body, p.maxBytes)); err != nil {
		return errs.Validation("image could not be decoded")
	}
	return nil
}

// NoopImageProber accepts every URL.
type NoopImageProber struct{}

func (NoopImageProber) Probe(context.Context, string) error { return nil }

var _ ImageProber = (*HTTPImageProber)(nil)
var _ ImageProber = NoopImageProber{}
