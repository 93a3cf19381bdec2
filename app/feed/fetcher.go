package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Fetcher retrieves a feed document over HTTP with a bounded timeout and
// hands it to the parser. All failures come back as *FetchError.
type Fetcher struct {
	httpClient *http.Client
	parser     *Parser
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, parser *Parser, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *Fetcher) Run(ctx context.Context, url string) (*Metadata, []Item, error) {
	data, err := f.fetch(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	metadata, items, err := f.parser.Run(data)
	if err != nil {
		return nil, nil, &FetchError{Reason: ReasonParse, URL: url, Err: err}
	}

	return metadata, items, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonNetwork, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: classifyTransportError(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Reason: ReasonNetwork,
			URL:    url,
			Err:    fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Reason: classifyTransportError(err), URL: url, Err: err}
	}

	return data, nil
}

func classifyTransportError(err error) FetchReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	return ReasonNetwork
}
