package sources

// YouTube Data API v3 access is split across files by responsibility:
//   youtube.go         client wiring, wire types and the decoding boundary
//   youtube_search.go  search.list
//   youtube_feeds.go   trending, channels, uploads and the subscription feed
//   subscriptions.go   subscription list import

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/jonboulle/clockwork"
)

const (
	ytDataAPIBase   = "https://www.googleapis.com/youtube/v3"
	ytMaxResults    = 50 // API page size ceiling
	ytSnippetMaxLen = 200
)

var (
	channelIDRE = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)
	videoIDRE   = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	regionRE    = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Options configures a YouTube source.
type Options struct {
	BaseURL     string        // default: the public Data API v3 endpoint
	DefaultTTL  time.Duration // cache TTL when none is stored in settings
	Concurrency int           // parallel channel fetches in the subscription feed
	Clock       clockwork.Clock
}

// YouTube fetches YouTube content through a key-rotating client and caches
// list results in TTL slots.
type YouTube struct {
	client      *engine.Client
	cache       engine.CacheBackend
	settings    *store.Settings
	inflight    *engine.Inflight
	clock       clockwork.Clock
	base        string
	defaultTTL  time.Duration
	concurrency int
}

func NewYouTube(client *engine.Client, cache engine.CacheBackend, settings *store.Settings, opts Options) *YouTube {
	y := &YouTube{
		client:      client,
		cache:       cache,
		settings:    settings,
		inflight:    engine.NewInflight(),
		clock:       opts.Clock,
		base:        strings.TrimRight(opts.BaseURL, "/"),
		defaultTTL:  opts.DefaultTTL,
		concurrency: opts.Concurrency,
	}
	if y.base == "" {
		y.base = ytDataAPIBase
	}
	if y.clock == nil {
		y.clock = clockwork.NewRealClock()
	}
	if y.concurrency <= 0 {
		y.concurrency = 4
	}
	return y
}

// Inflight exposes the running-fetch registry, e.g. to cancel a resource.
func (y *YouTube) Inflight() *engine.Inflight { return y.inflight }

// CacheTTL returns the stored cache TTL, falling back to the configured default.
func (y *YouTube) CacheTTL(ctx context.Context) time.Duration {
	ttl, ok, err := y.settings.CacheTTL(ctx)
	if err != nil || !ok {
		return y.defaultTTL
	}
	return ttl
}

// endpoint builds the URL for a Data API method with the key appended.
func (y *YouTube) endpoint(method string, params url.Values) engine.URLBuilder {
	return func(key string) *url.URL {
		u, err := url.Parse(y.base + "/" + method)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil
		}
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("key", key)
		u.RawQuery = q.Encode()
		return u
	}
}

// getJSON fetches method and decodes the body into out.
func (y *YouTube) getJSON(ctx context.Context, method string, params url.Values, out any) error {
	body, err := y.client.FetchWithRotation(ctx, y.endpoint(method, params))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrDecode, method, err)
	}
	return nil
}

// cached runs fetch behind the cache slot. refresh cancels other fetches
// of the same slot and skips the cache read.
func cached[T any](ctx context.Context, y *YouTube, slot string, refresh bool, empty func(T) bool, fetch func(context.Context) (T, error)) (T, error) {
	var done func()
	if refresh {
		ctx, done = y.inflight.Start(ctx, slot)
	} else {
		ctx, done = y.inflight.Track(ctx, slot)
	}
	defer done()

	s := engine.NewCacheStore[T](y.cache, slot, y.CacheTTL(ctx), y.clock)
	return engine.LoadOrFetch(ctx, s, refresh, empty, fetch)
}

// Invalidate drops a cache slot and aborts fetches still filling it, so a
// response already on the wire cannot re-save the dropped slot.
func (y *YouTube) Invalidate(ctx context.Context, slot string) {
	y.inflight.Cancel(slot)
	engine.NewCacheStore[json.RawMessage](y.cache, slot, 0, y.clock).Invalidate(ctx)
}

// InvalidateChannel drops the cached header and uploads of a channel and
// returns the slots it dropped.
func (y *YouTube) InvalidateChannel(ctx context.Context, ref string) ([]string, error) {
	ref = strings.TrimSpace(ref)
	var slots []string
	switch {
	case channelIDRE.MatchString(ref):
		slots = []string{"channel_" + ref + ".json", "uploads_" + ref + ".json"}
	case handleRE.MatchString(ref):
		slots = []string{"channel_" + ref + ".json"}
	default:
		return nil, fmt.Errorf("channel %q: %w", ref, engine.ErrInvalidURL)
	}
	for _, slot := range slots {
		y.Invalidate(ctx, slot)
	}
	return slots, nil
}

// cacheSlot builds a deterministic slot name from a prefix and free-form parts.
func cacheSlot(prefix string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s_%x.json", prefix, hash[:12])
}

func emptyVideos(v []engine.Video) bool { return len(v) == 0 }

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > ytMaxResults {
		return ytMaxResults
	}
	return limit
}

// --- wire types ---

// resourceID is the "id" field of API items: a bare string on videos.list,
// an object with kind-specific fields on search.list.
type resourceID struct {
	ID        string // bare form
	Kind      string
	VideoID   string
	ChannelID string
}

// video returns the video ID carried in either form.
func (r resourceID) video() string {
	if r.VideoID != "" {
		return r.VideoID
	}
	if r.Kind == "" {
		return r.ID
	}
	return ""
}

func (r *resourceID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = resourceID{ID: s}
		return nil
	}
	var obj struct {
		Kind      string `json:"kind"`
		VideoID   string `json:"videoId"`
		ChannelID string `json:"channelId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = resourceID{Kind: obj.Kind, VideoID: obj.VideoID, ChannelID: obj.ChannelID}
	return nil
}

// count is a statistics counter; the API sends int64 values as strings.
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*c = count(n)
	return nil
}

type ytThumbnail struct {
	URL string `json:"url"`
}

type ytThumbnails struct {
	Default *ytThumbnail `json:"default"`
	Medium  *ytThumbnail `json:"medium"`
	High    *ytThumbnail `json:"high"`
}

// best returns the largest available thumbnail URL.
func (t ytThumbnails) best() string {
	for _, th := range []*ytThumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

type ytSnippet struct {
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	ChannelID    string       `json:"channelId"`
	ChannelTitle string       `json:"channelTitle"`
	PublishedAt  time.Time    `json:"publishedAt"`
	CustomURL    string       `json:"customUrl"`
	Thumbnails   ytThumbnails `json:"thumbnails"`
	ResourceID   *resourceID  `json:"resourceId"`
}

type ytItem struct {
	ID             resourceID `json:"id"`
	Snippet        ytSnippet  `json:"snippet"`
	ContentDetails struct {
		Duration         string `json:"duration"`
		VideoID          string `json:"videoId"`
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount       count `json:"viewCount"`
		LikeCount       count `json:"likeCount"`
		SubscriberCount count `json:"subscriberCount"`
		VideoCount      count `json:"videoCount"`
	} `json:"statistics"`
}

type ytListResp struct {
	NextPageToken string   `json:"nextPageToken"`
	Items         []ytItem `json:"items"`
}

// videoID resolves the video an item refers to across list kinds. On
// playlistItems the bare id is the playlist item, not the video.
func (it ytItem) videoID() string {
	switch {
	case it.ContentDetails.VideoID != "":
		return it.ContentDetails.VideoID
	case it.Snippet.ResourceID != nil && it.Snippet.ResourceID.VideoID != "":
		return it.Snippet.ResourceID.VideoID
	}
	return it.ID.video()
}

func (it ytItem) toVideo() engine.Video {
	id := it.videoID()
	return engine.Video{
		ID:           id,
		Title:        it.Snippet.Title,
		URL:          engine.VideoURL(id),
		ChannelID:    it.Snippet.ChannelID,
		ChannelTitle: it.Snippet.ChannelTitle,
		Description:  engine.Snippet(it.Snippet.Description, ytSnippetMaxLen),
		Thumbnail:    it.Snippet.Thumbnails.best(),
		PublishedAt:  it.Snippet.PublishedAt,
		Duration:     it.ContentDetails.Duration,
		ViewCount:    int64(it.Statistics.ViewCount),
		LikeCount:    int64(it.Statistics.LikeCount),
	}
}

func (it ytItem) toChannel() engine.Channel {
	return engine.Channel{
		ID:              it.ID.ID,
		Title:           it.Snippet.Title,
		Description:     engine.TruncateRunes(it.Snippet.Description, 1000, "..."),
		CustomURL:       it.Snippet.CustomURL,
		Thumbnail:       it.Snippet.Thumbnails.best(),
		SubscriberCount: int64(it.Statistics.SubscriberCount),
		VideoCount:      int64(it.Statistics.VideoCount),
		UploadsPlaylist: it.ContentDetails.RelatedPlaylists.Uploads,
	}
}

// videosFromItems converts items, dropping ones without a video ID.
func videosFromItems(items []ytItem) []engine.Video {
	videos := make([]engine.Video, 0, len(items))
	for _, it := range items {
		if it.videoID() == "" {
			continue
		}
		videos = append(videos, it.toVideo())
	}
	return videos
}
