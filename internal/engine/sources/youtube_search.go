package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// languageRE matches an ISO 639-1 code, optionally with a script or
// region subtag (zh-Hans, pt-BR) as relevanceLanguage accepts.
var languageRE = regexp.MustCompile(`^[a-z]{2}(-[A-Za-z]{2,4})?$`)

// SearchOptions narrows a video search.
type SearchOptions struct {
	Limit    int
	Language string // relevanceLanguage, e.g. "en"; empty or "all" = any
	Region   string
	Order    string // relevance (default), date, viewCount, rating
	Refresh  bool
}

// Search searches videos via search.list (100 quota units per call).
// Results are cached per query and options.
func (y *YouTube) Search(ctx context.Context, query string, opts SearchOptions) ([]engine.Video, error) {
	engine.IncrSearchRequests()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, engine.ErrEmptyQuery
	}
	limit := clampLimit(opts.Limit, 10)

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(limit))
	if lang := strings.ToLower(strings.TrimSpace(opts.Language)); lang != "" && lang != "all" {
		if !languageRE.MatchString(lang) {
			return nil, fmt.Errorf("language %q: %w", opts.Language, engine.ErrInvalidURL)
		}
		params.Set("relevanceLanguage", lang)
	}
	if strings.TrimSpace(opts.Region) != "" {
		region := engine.NormRegion(opts.Region)
		if !regionRE.MatchString(region) {
			return nil, fmt.Errorf("region %q: %w", region, engine.ErrInvalidURL)
		}
		params.Set("regionCode", region)
	}
	switch opts.Order {
	case "date", "viewCount", "rating":
		params.Set("order", opts.Order)
	}

	slot := cacheSlot("search", query, params.Encode())
	videos, err := cached(ctx, y, slot, opts.Refresh, emptyVideos, func(ctx context.Context) ([]engine.Video, error) {
		var resp ytListResp
		if err := y.getJSON(ctx, "search", params, &resp); err != nil {
			return nil, err
		}
		return videosFromItems(resp.Items), nil
	})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, engine.ErrNoResults
	}
	return videos, nil
}
