package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const fetcherTestFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Remote Feed</title>
    <link>https://example.com</link>
    <item>
      <title>Entry One</title>
      <link>https://example.com/1</link>
      <guid>one</guid>
    </item>
  </channel>
</rss>`

func newTestFetcher(timeout time.Duration) *Fetcher {
	client := &http.Client{Timeout: timeout}
	return NewFetcher(client, NewParser(), "test-agent/1.0", timeout)
}

func TestFetcher_Success(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(fetcherTestFeed))
	}))
	defer server.Close()

	fetcher := newTestFetcher(5 * time.Second)
	metadata, items, err := fetcher.Run(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if metadata.Title != "Remote Feed" {
		t.Errorf("Expected title 'Remote Feed', got: %s", metadata.Title)
	}
	if len(items) != 1 {
		t.Errorf("Expected 1 item, got %d", len(items))
	}
	if gotUserAgent != "test-agent/1.0" {
		t.Errorf("Expected custom user agent, got: %s", gotUserAgent)
	}
}

func TestFetcher_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := newTestFetcher(5 * time.Second)
	_, _, err := fetcher.Run(context.Background(), server.URL)

	if err == nil {
		t.Fatal("Expected error for HTTP 500")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got: %T", err)
	}
	if fetchErr.Reason != ReasonNetwork {
		t.Errorf("Expected network reason, got: %s", fetchErr.Reason)
	}
}

func TestFetcher_MalformedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("definitely not XML"))
	}))
	defer server.Close()

	fetcher := newTestFetcher(5 * time.Second)
	_, _, err := fetcher.Run(context.Background(), server.URL)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got: %v", err)
	}
	if fetchErr.Reason != ReasonParse {
		t.Errorf("Expected parse reason, got: %s", fetchErr.Reason)
	}
}

func TestFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(fetcherTestFeed))
	}))
	defer server.Close()

	fetcher := newTestFetcher(50 * time.Millisecond)
	_, _, err := fetcher.Run(context.Background(), server.URL)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got: %v", err)
	}
	if fetchErr.Reason != ReasonTimeout {
		t.Errorf("Expected timeout reason, got: %s", fetchErr.Reason)
	}
}

func TestFetcher_ConnectionRefused(t *testing.T) {
	fetcher := newTestFetcher(2 * time.Second)
	_, _, err := fetcher.Run(context.Background(), "http://127.0.0.1:1/feed.xml")

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got: %v", err)
	}
	if fetchErr.Reason != ReasonNetwork {
		t.Errorf("Expected network reason, got: %s", fetchErr.Reason)
	}
}
