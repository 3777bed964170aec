package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agriveille/prefecture-crawler/internal/catalog"
	"github.com/agriveille/prefecture-crawler/internal/fetch"
	"github.com/agriveille/prefecture-crawler/internal/oracle"
)

// stubFetcher serves canned bodies by URL and records every request.
type stubFetcher struct {
	mu          sync.Mutex
	pages       map[string]string
	errs        map[string]error
	defaultBody string
	requests    []string
	resets      int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return fetch.Result{}, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		if f.defaultBody == "" {
			return fetch.Result{}, &fetch.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
		}
		body = f.defaultBody
	}
	return fetch.Result{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
		FetchedAt:  time.Now(),
	}, nil
}

func (f *stubFetcher) ResetIdentity() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

// requested counts how often one URL was fetched.
func (f *stubFetcher) requested(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.requests {
		if u == url {
			n++
		}
	}
	return n
}

func (f *stubFetcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// scriptedOracle answers Classify by request kind. Queued answers are
// consumed in order; the last one repeats.
type scriptedOracle struct {
	mu      sync.Mutex
	answers map[string][]string
	errs    map[string]error
	calls   []oracle.ClassifyRequest
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{
		answers: make(map[string][]string),
		errs:    make(map[string]error),
	}
}

func (o *scriptedOracle) answer(kind, payload string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answers[kind] = append(o.answers[kind], payload)
}

func (o *scriptedOracle) Classify(_ context.Context, req oracle.ClassifyRequest) (json.RawMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, req)
	if err := o.errs[req.Kind]; err != nil {
		return nil, err
	}
	queue := o.answers[req.Kind]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted answer for kind %q", req.Kind)
	}
	payload := queue[0]
	if len(queue) > 1 {
		o.answers[req.Kind] = queue[1:]
	}
	return json.RawMessage(payload), nil
}

// kindTexts returns the Text of every Classify call for one request kind,
// in call order.
func (o *scriptedOracle) kindTexts(kind string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var texts []string
	for _, c := range o.calls {
		if c.Kind == kind {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

// kindCalls counts Classify invocations for one request kind.
func (o *scriptedOracle) kindCalls(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func testSource() catalog.Prefecture {
	return catalog.Prefecture{
		Name:   "Morbihan",
		Region: "Bretagne",
		Domain: "morbihan.gouv.fr",
		Code:   "56",
	}
}
