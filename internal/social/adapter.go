// Package social implements the Listing Source Adapter: it turns a
// Listing Descriptor into a page of Items over the third-party HTTP
// listing API, and owns the bearer token lifecycle behind it.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/model"
)

// Adapter retrieves pages of Items for a Listing Descriptor. It is safe for
// concurrent use by multiple goroutines sharing the same credentials, but
// is cloned one per poller so token refresh contention stays per-user;
// Clone returns an independent Adapter that shares nothing mutable with
// its parent except the *http.Client.
type Adapter struct {
	host string
	ts   *tokenSource
	hc   *http.Client
}

// New builds an Adapter against host (e.g. "reddit.com") using creds. A
// *http.Client is constructed with a bounded per-request timeout if hc is
// nil.
func New(host string, creds Credentials, hc *http.Client) *Adapter {
	host = trimHost(host)
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		host: host,
		ts:   newTokenSource(creds, host, hc),
		hc:   hc,
	}
}

// Clone returns an Adapter for the same host and credentials with its own
// token lifecycle state, for per-poller isolation.
func (a *Adapter) Clone() *Adapter {
	return New(a.host, a.ts.creds, a.hc)
}

// Retrieve fetches the current page for desc and advances its anchor cache
// in place. On success, when the response yielded items, the descriptor's
// pagination anchor cache is replaced; a zero-item response leaves it
// unchanged. Decode failures are treated as an empty page with a nil
// error.
func (a *Adapter) Retrieve(ctx context.Context, desc *listing.Descriptor) ([]model.Item, error) {
	endpoint := a.endpointFor(desc)

	token, err := a.ts.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, transportErr(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := a.hc.Do(req)
	if err != nil {
		return nil, transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, transportErr(fmt.Errorf("listing request: unexpected status %s", resp.Status))
	}

	limit := 1
	if desc.Pagination != nil {
		limit = desc.Pagination.Limit()
	}
	items, err := a.decodeListing(resp.Body, limit)
	if err != nil {
		// Decode failures are treated as an empty page.
		return nil, nil
	}

	if desc.Pagination != nil {
		desc.Pagination.UpdateAnchor(items)
	}
	return items, nil
}

// endpointFor builds the bit-exact request URL.
func (a *Adapter) endpointFor(desc *listing.Descriptor) string {
	base := fmt.Sprintf("https://oauth.%s/r/%s/%s", a.host, desc.Community.Name(), desc.Category.WireTag())
	if desc.Pagination == nil {
		return base
	}
	p := desc.Pagination

	anchorKey := "after"
	if p.Direction() == listing.Back {
		anchorKey = "before"
	}
	cursor := p.CursorID()
	anchorVal := "null"
	if cursor != "" {
		anchorVal = "t3_" + cursor
	}

	return fmt.Sprintf("%s?%s=%s&count=%d&limit=%d&show=%s",
		base, anchorKey, anchorVal, p.SeenCount(), p.Limit(), p.ShowRules())
}

// rawChild mirrors the fields of data.children[i].data the adapter reads.
type rawChild struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Author    string `json:"author"`
	Title     string `json:"title"`
	Permalink string `json:"permalink"`
	Ups       int    `json:"ups"`
	Downs     int    `json:"downs"`
}

type rawListing struct {
	Data struct {
		Children []struct {
			Data rawChild `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// decodeListing reads up to limit children, filters the end-of-stream
// placeholder ("ul"), and builds the displayed canonical link from the
// permalink.
func (a *Adapter) decodeListing(body io.Reader, limit int) ([]model.Item, error) {
	var raw rawListing
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, limit)
	for i, child := range raw.Data.Children {
		if i >= limit {
			break
		}
		d := child.Data
		if d.ID == "ul" {
			continue
		}
		link := ""
		if d.Permalink != "" {
			link = fmt.Sprintf("https://%s%s", a.host, d.Permalink)
		}
		items = append(items, model.Item{
			ID:        d.ID,
			Link:      link,
			MediaHref: d.URL,
			Title:     d.Title,
			Author:    d.Author,
			Ups:       d.Ups,
			Downs:     d.Downs,
		})
	}
	return items, nil
}
