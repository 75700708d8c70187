package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/errs"
)

func pngServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImageProberRejectsLoopback(t *testing.T) {
	var hits atomic.Int32
	srv := pngServer(t, &hits)

	prober := NewHTTPImageProber(2 * time.Second)
	err := prober.Probe(context.Background(), srv.URL+"/internal/admin")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Zero(t, hits.Load())
}

func TestImageProberDecodesImage(t *testing.T) {
	var hits atomic.Int32
	srv := pngServer(t, &hits)

	prober := NewHTTPImageProber(2 * time.Second)
	prober.allowPrivate = true
	require.NoError(t, prober.Probe(context.Background(), srv.URL+"/cat.png"))
	assert.Equal(t, int32(1), hits.Load())

	err := prober.Probe(context.Background(), "ftp://example.com/cat.png")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestIsPublicAddr(t *testing.T) {
	cases := map[string]bool{
		"8.8.8.8":            true,
		"2606:4700::1111":    true,
		"127.0.0.1":          false,
		"10.1.2.3":           false,
		"192.168.0.10":       false,
		"172.16.5.4":         false,
		"169.254.169.254":    false,
		"100.64.0.1":         false,
		"0.0.0.0":            false,
		"::1":                false,
		"fe80::1":            false,
		"fd00::1":            false,
		"::ffff:127.0.0.1":   false,
		"::ffff:93.184.0.10": true,
	}
	for raw, want := range cases {
		assert.Equal(t, want, isPublicAddr(netip.MustParseAddr(raw)), raw)
	}
}
