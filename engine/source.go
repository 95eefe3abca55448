package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

var (
	ErrBadStatus         = errors.New("source bad status code")
	ErrUnsupportedFormat = errors.New("source is not an mp3 stream")
	ErrNoSources         = errors.New("sound has no sources")
)

const (
	sourceHTTPClientTimeout         = 60 * time.Second
	sourceHTTPDialTimeout           = 5 * time.Second
	sourceHTTPKeepAlive             = 30 * time.Second
	sourceHTTPTLSHandshakeTimeout   = 5 * time.Second
	sourceHTTPResponseHeaderTimeout = 10 * time.Second
	sourceHTTPIdleConnTimeout       = 90 * time.Second
	sourceHTTPRetryMax              = 3

	// sniffLen matches the header size filetype inspects.
	sniffLen = 261
)

var sourceHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   sourceHTTPDialTimeout,
		KeepAlive: sourceHTTPKeepAlive,
	}).DialContext,
	TLSHandshakeTimeout:   sourceHTTPTLSHandshakeTimeout,
	ResponseHeaderTimeout: sourceHTTPResponseHeaderTimeout,
	IdleConnTimeout:       sourceHTTPIdleConnTimeout,
}

func newRetryableHTTPClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout:   sourceHTTPClientTimeout,
		Transport: sourceHTTPTransport,
	}

	return retryClient.StandardClient()
}

var sourceHTTPClient = newRetryableHTTPClient(sourceHTTPRetryMax)

func isRemote(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// OpenSource opens a local file path or an http(s) URL.
func OpenSource(ctx context.Context, loc string) (io.ReadCloser, error) {
	if !isRemote(loc) {
		f, err := os.Open(loc)
		if err != nil {
			return nil, fmt.Errorf("openSource failed to open file: %w", err)
		}
		return f, nil
	}

	if _, err := url.ParseRequestURI(loc); err != nil {
		return nil, fmt.Errorf("openSource failed to parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("openSource failed to call NewRequest: %w", err)
	}

	resp, err := sourceHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openSource failed to client.Do: %w", err)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrBadStatus, "%s: %d", loc, resp.StatusCode)
	}

	return resp.Body, nil
}

// sniffMP3 checks the stream header and returns a reader that still
// yields the full stream.
func sniffMP3(r io.Reader) (io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("sniffMP3 failed to read header: %w", err)
	}
	head = head[:n]

	if !filetype.Is(head, "mp3") {
		kind, _ := filetype.Match(head)
		return nil, errors.Wrapf(ErrUnsupportedFormat, "detected %q", kind.MIME.Value)
	}

	return io.MultiReader(bytes.NewReader(head), r), nil
}
