package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"streamcore/models"
	"streamcore/util"

	"go.uber.org/zap"
)

const maxSegmentSize = 256 * 1024 * 1024 // hard cap per fetched resource

var (
	defaultClient     *http.Client
	defaultClientOnce sync.Once
)

func GetDefaultHTTPClient() *http.Client {
	defaultClientOnce.Do(func() {
		defaultClient = &http.Client{
			Transport: GetBaseTransport(),
			Timeout:   60 * time.Second,
		}
	})
	return defaultClient
}

func GetBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// HTTPFetcher is the plain HTTP implementation of the Fetcher contract.
// Headers and cookies come from the processing config so the surrounding
// client can pass its authenticated session through.
type HTTPFetcher struct {
	client  *http.Client
	headers map[string]string
	cookies []*http.Cookie
	timeout time.Duration
	maxSize int64
}

func NewHTTPFetcher(config *models.ProcessConfig) *HTTPFetcher {
	config = models.GetProcessConfig(config)
	return &HTTPFetcher{
		client:  GetDefaultHTTPClient(),
		headers: config.Headers,
		cookies: config.Cookies,
		timeout: config.Timeout,
		maxSize: maxSegmentSize,
	}
}

// WithClient swaps the underlying HTTP client, e.g. for a proxied or
// impersonating transport owned by the caller.
func (f *HTTPFetcher) WithClient(client *http.Client) *HTTPFetcher {
	f.client = client
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, fetchReq *Request) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fetchReq.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range f.cookies {
		req.AddCookie(cookie)
	}
	if fetchReq.RangeLength > 0 {
		end := fetchReq.RangeStart + fetchReq.RangeLength - 1
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", fetchReq.RangeStart, end))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: unexpected status code %d", util.ErrFetchFailed, resp.StatusCode)
	}

	// allocate a single buffer with the correct
	// size upfront to prevent reallocations
	var data []byte
	if resp.ContentLength > 0 {
		if resp.ContentLength > f.maxSize {
			return nil, fmt.Errorf("%w: resource too large: %d bytes", util.ErrFetchFailed, resp.ContentLength)
		}
		data = make([]byte, 0, resp.ContentLength)
	} else {
		data = make([]byte, 0, 64*1024)
	}

	// read one byte past the cap so an oversized body surfaces as an
	// error instead of a truncated stream
	limitedReader := io.LimitReader(resp.Body, f.maxSize+1)

	buf := make([]byte, 32*1024)
	for {
		n, err := limitedReader.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read response body: %v", util.ErrFetchFailed, err)
		}
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: resource exceeds %d bytes", util.ErrFetchFailed, f.maxSize)
	}

	zap.S().Debugf("fetched %d bytes from %s", len(data), fetchReq.URL)
	return data, nil
}
