package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// CollyFetcher fetches unauthenticated listing pages, such as the term list
// reference page. Authenticated phases go through Client instead.
type CollyFetcher struct {
	baseCollector *colly.Collector
	enc           encoding.Encoding
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based fetcher.
func NewCollyFetcher(profile Profile, logger *zap.Logger) (*CollyFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := lookupEncoding(profile.Charset)
	if err != nil {
		return nil, err
	}

	base := colly.NewCollector(colly.UserAgent(profile.UserAgent))
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: profile.Timeout,
	})
	base.SetRequestTimeout(profile.Timeout)

	return &CollyFetcher{
		baseCollector: base,
		enc:           enc,
		logger:        logger,
	}, nil
}

// Fetch retrieves a page via a clone of the base collector.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		send(fetchResult{
			resp: &Response{
				StatusCode: r.StatusCode,
				Header:     headers,
				Body:       append([]byte{}, r.Body...),
			},
		})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.err != nil {
			return nil, res.err
		}
		text, err := decodeBody(res.resp.Body, f.enc)
		if err != nil {
			return nil, err
		}
		res.resp.Text = text
		return res.resp, nil
	default:
		return nil, errors.New("colly fetch produced no result")
	}
}

type fetchResult struct {
	resp *Response
	err  error
}
