package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"golang.org/x/sync/errgroup"
)

// feedPerChannel caps how many recent uploads each channel contributes to the feed.
const feedPerChannel = 10

var handleRE = regexp.MustCompile(`^@[A-Za-z0-9._-]{3,30}$`)

// Trending returns the most popular videos for a region (videos.list chart=mostPopular).
func (y *YouTube) Trending(ctx context.Context, region string, limit int, refresh bool) ([]engine.Video, error) {
	engine.IncrTrendingRequests()
	region = engine.NormRegion(region)
	if !regionRE.MatchString(region) {
		return nil, fmt.Errorf("region %q: %w", region, engine.ErrInvalidURL)
	}
	limit = clampLimit(limit, 25)

	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("chart", "mostPopular")
	params.Set("regionCode", region)
	params.Set("maxResults", strconv.Itoa(ytMaxResults))

	// The slot holds a full page; limit is applied on the way out so that
	// different limits share one cache entry.
	videos, err := cached(ctx, y, "trending_"+region+".json", refresh, emptyVideos, func(ctx context.Context) ([]engine.Video, error) {
		var resp ytListResp
		if err := y.getJSON(ctx, "videos", params, &resp); err != nil {
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
	return videos[:min(limit, len(videos))], nil
}

// Channel returns channel metadata by ID (UC...) or handle (@name).
func (y *YouTube) Channel(ctx context.Context, id string, refresh bool) (*engine.Channel, error) {
	engine.IncrChannelRequests()
	id = strings.TrimSpace(id)
	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	switch {
	case channelIDRE.MatchString(id):
		params.Set("id", id)
	case handleRE.MatchString(id):
		params.Set("forHandle", id)
	default:
		return nil, fmt.Errorf("channel %q: %w", id, engine.ErrInvalidURL)
	}

	empty := func(c []engine.Channel) bool { return len(c) == 0 }
	channels, err := cached(ctx, y, "channel_"+id+".json", refresh, empty, func(ctx context.Context) ([]engine.Channel, error) {
		var resp ytListResp
		if err := y.getJSON(ctx, "channels", params, &resp); err != nil {
			return nil, err
		}
		out := make([]engine.Channel, 0, len(resp.Items))
		for _, it := range resp.Items {
			if it.ID.ID == "" {
				continue
			}
			out = append(out, it.toChannel())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, engine.ErrNoResults
	}
	return &channels[0], nil
}

// uploadsPlaylist derives a channel's uploads playlist ID ("UC..." -> "UU...").
func uploadsPlaylist(channelID string) string {
	return "UU" + channelID[2:]
}

// ChannelVideos returns the most recent uploads of a channel via its
// uploads playlist (playlistItems.list, 1 unit instead of 100 for search).
func (y *YouTube) ChannelVideos(ctx context.Context, id string, limit int, refresh bool) ([]engine.Video, error) {
	id = strings.TrimSpace(id)
	if !channelIDRE.MatchString(id) {
		return nil, fmt.Errorf("channel %q: %w", id, engine.ErrInvalidURL)
	}
	limit = clampLimit(limit, 25)

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", uploadsPlaylist(id))
	params.Set("maxResults", strconv.Itoa(ytMaxResults))

	videos, err := cached(ctx, y, "uploads_"+id+".json", refresh, emptyVideos, func(ctx context.Context) ([]engine.Video, error) {
		var resp ytListResp
		if err := y.getJSON(ctx, "playlistItems", params, &resp); err != nil {
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
	return videos[:min(limit, len(videos))], nil
}

// Videos looks up full details (statistics, duration) for video IDs.
// Invalid IDs are dropped. Results are not cached.
func (y *YouTube) Videos(ctx context.Context, ids []string) ([]engine.Video, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if videoIDRE.MatchString(id) && !slices.Contains(valid, id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, engine.ErrNoResults
	}

	var out []engine.Video
	for chunk := range slices.Chunk(valid, ytMaxResults) {
		params := url.Values{}
		params.Set("part", "snippet,contentDetails,statistics")
		params.Set("id", strings.Join(chunk, ","))
		var resp ytListResp
		if err := y.getJSON(ctx, "videos", params, &resp); err != nil {
			return nil, err
		}
		out = append(out, videosFromItems(resp.Items)...)
	}
	if len(out) == 0 {
		return nil, engine.ErrNoResults
	}
	return out, nil
}

// VideoIDFrom extracts a video ID from a bare ID, a watch URL, a youtu.be
// link or a /shorts/ URL. It returns "" otherwise.
func VideoIDFrom(s string) string {
	s = strings.TrimSpace(s)
	if videoIDRE.MatchString(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); videoIDRE.MatchString(v) {
		return v
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := parts[len(parts)-1]
	if (u.Hostname() == "youtu.be" || slices.Contains(parts, "shorts")) && videoIDRE.MatchString(last) {
		return last
	}
	return ""
}

// SubscriptionFeed merges recent uploads of the given channels, newest first.
// A quota error aborts the whole feed; other per-channel failures are logged
// and skipped unless every channel failed.
func (y *YouTube) SubscriptionFeed(ctx context.Context, channelIDs []string, limit int, refresh bool) ([]engine.Video, error) {
	engine.IncrFeedRequests()
	if limit <= 0 {
		limit = 50
	}
	ids := make([]string, 0, len(channelIDs))
	for _, id := range channelIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, engine.ErrNoResults
	}
	perChannel := min(limit, feedPerChannel)

	var (
		mu       sync.Mutex
		all      []engine.Video
		firstErr error
		failed   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(y.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			videos, err := y.ChannelVideos(gctx, id, perChannel, refresh)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, engine.ErrQuotaExceeded) || errors.Is(err, engine.ErrNoCredentials) {
					return err
				}
				if !errors.Is(err, engine.ErrNoResults) {
					slog.Warn("feed: channel skipped", slog.String("channel", id), slog.Any("error", err))
				}
				failed++
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			all = append(all, videos...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(ids) && firstErr != nil {
		return nil, firstErr
	}

	slices.SortStableFunc(all, func(a, b engine.Video) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if len(all) == 0 {
		return nil, engine.ErrNoResults
	}
	return all[:min(limit, len(all))], nil
}
