package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ResolveDatasetURL fetches a catalog page and returns the first anchor whose
// href ends in suffix (e.g. ".csv" or ".zip"), resolved against the page URL.
//
// Archive catalogs move their files between releases; scraping the landing
// page is more stable than pinning a deep link.
func (c *Client) ResolveDatasetURL(ctx context.Context, pageURL, suffix string) (string, error) {
	if suffix == "" {
		return "", fmt.Errorf("fetch: link suffix must not be empty")
	}

	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("fetch: status %d from catalog %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch: parse catalog %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch: parse catalog url: %w", err)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(strings.ToLower(href), strings.ToLower(suffix)) {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})

	if found == "" {
		return "", fmt.Errorf("fetch: no link ending in %q on %s", suffix, pageURL)
	}
	return found, nil
}
