package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// route answers one API method; it sees the request query.
type route func(r *http.Request) (int, string)

type fakeYouTube struct {
	mu     sync.Mutex
	routes map[string]route
	hits   map[string]int
	srv    *httptest.Server
}

func (f *fakeYouTube) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	f.mu.Lock()
	f.hits[method]++
	h, ok := f.routes[method]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	status, body := h(r)
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (f *fakeYouTube) hitsFor(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[method]
}

type ytFixture struct {
	api      *fakeYouTube
	yt       *YouTube
	settings *store.Settings
	clock    *clockwork.FakeClock
}

func newYTFixture(t *testing.T, routes map[string]route) *ytFixture {
	t.Helper()
	api := &fakeYouTube{routes: routes, hits: map[string]int{}}
	api.srv = httptest.NewServer(api)
	t.Cleanup(api.srv.Close)

	clock := clockwork.NewFakeClockAt(testEpoch)
	settings := store.NewSettings(store.NewMemoryKV())
	usage := engine.NewUsage(settings, clock, engine.UsageConfig{})
	client := engine.NewClient([]string{"key-a", "key-b"}, settings, usage, engine.WithHTTPClient(api.srv.Client()))
	yt := NewYouTube(client, &engine.MemoryCache{}, settings, Options{
		BaseURL:    api.srv.URL + "/youtube/v3",
		DefaultTTL: time.Hour,
		Clock:      clock,
	})
	return &ytFixture{api: api, yt: yt, settings: settings, clock: clock}
}

func (f *ytFixture) used(t *testing.T, key string) int64 {
	t.Helper()
	usage, err := f.settings.KeyUsage(context.Background())
	require.NoError(t, err)
	return usage[key]
}

func static(status int, body string) route {
	return func(*http.Request) (int, string) { return status, body }
}

func chanID(c byte) string { return "UC" + strings.Repeat(string(c), 22) }

func vidID(n int) string { return fmt.Sprintf("vid%08d", n) }

func videoItem(id, title string, published time.Time) string {
	return fmt.Sprintf(`{"id":%q,"snippet":{"title":%q,"channelId":"UCx","channelTitle":"Chan","publishedAt":%q,"description":"  some   text  ","thumbnails":{"default":{"url":"d"},"high":{"url":"h"}}},"contentDetails":{"duration":"PT4M13S"},"statistics":{"viewCount":"1500","likeCount":"12"}}`,
		id, title, published.Format(time.RFC3339))
}

func itemsBody(items ...string) string {
	return `{"items":[` + strings.Join(items, ",") + `]}`
}

func TestResourceID_DecodesBothForms(t *testing.T) {
	var items []struct {
		ID resourceID `json:"id"`
	}
	raw := `[{"id":"abcdefghijk"},{"id":{"kind":"youtube#video","videoId":"zyxwvutsrqp"}},{"id":{"kind":"youtube#channel","channelId":"UCq"}}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	require.Len(t, items, 3)

	assert.Equal(t, "abcdefghijk", items[0].ID.video())
	assert.Equal(t, "zyxwvutsrqp", items[1].ID.video())
	assert.Equal(t, "", items[2].ID.video())
	assert.Equal(t, "UCq", items[2].ID.ChannelID)
}

func TestResourceID_RejectsOtherShapes(t *testing.T) {
	var r resourceID
	assert.Error(t, json.Unmarshal([]byte(`42`), &r))
}

func TestCount_ParsesStringsAndNumbers(t *testing.T) {
	var v struct {
		A count `json:"a"`
		B count `json:"b"`
		C count `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"123","b":45,"c":null}`), &v))
	assert.Equal(t, count(123), v.A)
	assert.Equal(t, count(45), v.B)
	assert.Equal(t, count(0), v.C)
}

func TestTrending_CachesWithinTTL(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"videos": func(r *http.Request) (int, string) {
			assert.Equal(t, "mostPopular", r.URL.Query().Get("chart"))
			assert.Equal(t, "DE", r.URL.Query().Get("regionCode"))
			return 200, itemsBody(videoItem(vidID(1), "one", testEpoch), videoItem(vidID(2), "two", testEpoch))
		},
	})
	ctx := context.Background()

	videos, err := f.yt.Trending(ctx, "de", 10, false)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, vidID(1), videos[0].ID)
	assert.Equal(t, "https://www.youtube.com/watch?v="+vidID(1), videos[0].URL)
	assert.Equal(t, "h", videos[0].Thumbnail)
	assert.Equal(t, "some text", videos[0].Description)
	assert.Equal(t, int64(1500), videos[0].ViewCount)

	_, err = f.yt.Trending(ctx, "DE", 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.api.hitsFor("videos"), "second call within TTL must be served from cache")
	assert.Equal(t, int64(1), f.used(t, "key-a"))

	f.clock.Advance(time.Hour + time.Second)
	_, err = f.yt.Trending(ctx, "DE", 10, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.api.hitsFor("videos"), "expired slot must refetch")
}

func TestTrending_LimitAppliedToCachedPage(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"videos": static(200, itemsBody(videoItem(vidID(1), "a", testEpoch), videoItem(vidID(2), "b", testEpoch), videoItem(vidID(3), "c", testEpoch))),
	})
	videos, err := f.yt.Trending(context.Background(), "US", 2, false)
	require.NoError(t, err)
	assert.Len(t, videos, 2)
}

func TestTrending_RefreshBypassesCache(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"videos": static(200, itemsBody(videoItem(vidID(1), "one", testEpoch))),
	})
	ctx := context.Background()
	_, err := f.yt.Trending(ctx, "US", 10, false)
	require.NoError(t, err)
	_, err = f.yt.Trending(ctx, "US", 10, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.api.hitsFor("videos"))
}

func TestTrending_EmptyIsNoResultsAndNotCached(t *testing.T) {
	f := newYTFixture(t, map[string]route{"videos": static(200, `{"items":[]}`)})
	ctx := context.Background()

	_, err := f.yt.Trending(ctx, "US", 10, false)
	require.ErrorIs(t, err, engine.ErrNoResults)
	_, err = f.yt.Trending(ctx, "US", 10, false)
	require.ErrorIs(t, err, engine.ErrNoResults)
	assert.Equal(t, 2, f.api.hitsFor("videos"), "empty collection must count as a miss")
	assert.Equal(t, engine.AlertNoResults, engine.Classify(err).Kind)
}

func TestTrending_InvalidRegion(t *testing.T) {
	f := newYTFixture(t, nil)
	_, err := f.yt.Trending(context.Background(), "usa", 10, false)
	require.ErrorIs(t, err, engine.ErrInvalidURL)
	assert.Equal(t, 0, f.api.hitsFor("videos"))
}

func TestTrending_DecodeFailureIsUnknownError(t *testing.T) {
	f := newYTFixture(t, map[string]route{"videos": static(200, `<html>nope</html>`)})
	_, err := f.yt.Trending(context.Background(), "US", 10, false)
	require.ErrorIs(t, err, engine.ErrDecode)
	assert.Equal(t, engine.AlertUnknownError, engine.Classify(err).Kind)
}

func TestSearch(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"search": func(r *http.Request) (int, string) {
			q := r.URL.Query()
			assert.Equal(t, "golang generics", q.Get("q"))
			assert.Equal(t, "video", q.Get("type"))
			assert.Equal(t, "5", q.Get("maxResults"))
			return 200, `{"items":[{"id":{"kind":"youtube#video","videoId":"` + vidID(7) + `"},"snippet":{"title":"Generics","channelId":"UCx"}}]}`
		},
	})
	ctx := context.Background()

	videos, err := f.yt.Search(ctx, "  golang generics ", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, vidID(7), videos[0].ID)
	assert.Equal(t, int64(100), f.used(t, "key-a"), "search costs 100 units")

	_, err = f.yt.Search(ctx, "golang generics", SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, f.api.hitsFor("search"))
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newYTFixture(t, nil)
	_, err := f.yt.Search(context.Background(), "   ", SearchOptions{})
	require.ErrorIs(t, err, engine.ErrEmptyQuery)
	assert.Equal(t, engine.AlertEmptyQuery, engine.Classify(err).Kind)
	assert.Equal(t, 0, f.api.hitsFor("search"))
}

func TestSearch_InvalidRegion(t *testing.T) {
	f := newYTFixture(t, map[string]route{"search": static(400, `{"error":{"code":400,"message":"bad region"}}`)})
	ctx := context.Background()

	for _, opts := range []SearchOptions{
		{Region: "USA"},
		{Region: "u1"},
		{Language: "english"},
		{Language: "e"},
	} {
		_, err := f.yt.Search(ctx, "go", opts)
		require.ErrorIs(t, err, engine.ErrInvalidURL, "%+v", opts)
		assert.Equal(t, engine.AlertAPIError, engine.Classify(err).Kind, "%+v", opts)
	}
	assert.Equal(t, 0, f.api.hitsFor("search"))
	assert.Equal(t, int64(0), f.used(t, "key-a"))
}

func TestSearch_NormalizesRegionAndLanguage(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"search": func(r *http.Request) (int, string) {
			q := r.URL.Query()
			assert.Equal(t, "GB", q.Get("regionCode"))
			assert.Equal(t, "pt-br", q.Get("relevanceLanguage"))
			return 200, `{"items":[{"id":{"videoId":"` + vidID(1) + `"},"snippet":{"title":"x"}}]}`
		},
	})
	_, err := f.yt.Search(context.Background(), "go", SearchOptions{Region: " gb ", Language: "pt-BR"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.api.hitsFor("search"))
}

func TestSearch_QuotaRotatesKeys(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"search": func(r *http.Request) (int, string) {
			if r.URL.Query().Get("key") == "key-a" {
				return 403, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`
			}
			return 200, `{"items":[{"id":{"videoId":"` + vidID(1) + `"},"snippet":{"title":"x"}}]}`
		},
	})
	videos, err := f.yt.Search(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, videos, 1)
	assert.Equal(t, int64(engine.DefaultKeyLimit), f.used(t, "key-a"))
	assert.Equal(t, int64(100), f.used(t, "key-b"))
}

func TestChannel(t *testing.T) {
	id := chanID('a')
	f := newYTFixture(t, map[string]route{
		"channels": func(r *http.Request) (int, string) {
			assert.Equal(t, id, r.URL.Query().Get("id"))
			return 200, `{"items":[{"id":"` + id + `","snippet":{"title":"Go","customUrl":"@golang","thumbnails":{"medium":{"url":"m"}}},"contentDetails":{"relatedPlaylists":{"uploads":"UU` + id[2:] + `"}},"statistics":{"subscriberCount":"1200","videoCount":"33","hiddenSubscriberCount":false}}]}`
		},
	})

	ch, err := f.yt.Channel(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, id, ch.ID)
	assert.Equal(t, "Go", ch.Title)
	assert.Equal(t, "@golang", ch.CustomURL)
	assert.Equal(t, "m", ch.Thumbnail)
	assert.Equal(t, int64(1200), ch.SubscriberCount)
	assert.Equal(t, int64(33), ch.VideoCount)
	assert.Equal(t, "UU"+id[2:], ch.UploadsPlaylist)
}

func TestChannel_Handle(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"channels": func(r *http.Request) (int, string) {
			assert.Equal(t, "@golang", r.URL.Query().Get("forHandle"))
			return 200, `{"items":[]}`
		},
	})
	_, err := f.yt.Channel(context.Background(), "@golang", false)
	require.ErrorIs(t, err, engine.ErrNoResults)
}

func TestChannel_InvalidID(t *testing.T) {
	f := newYTFixture(t, nil)
	_, err := f.yt.Channel(context.Background(), "../etc/passwd", false)
	require.ErrorIs(t, err, engine.ErrInvalidURL)
}

func TestChannelVideos_UsesUploadsPlaylist(t *testing.T) {
	id := chanID('b')
	f := newYTFixture(t, map[string]route{
		"playlistItems": func(r *http.Request) (int, string) {
			assert.Equal(t, "UU"+id[2:], r.URL.Query().Get("playlistId"))
			return 200, `{"items":[{"id":"UExpbGF5bGlzdGl0ZW0","snippet":{"title":"up","publishedAt":"2026-10-16T10:00:00Z","resourceId":{"kind":"youtube#video","videoId":"` + vidID(3) + `"}},"contentDetails":{"videoId":"` + vidID(3) + `"}}]}`
		},
	})
	videos, err := f.yt.ChannelVideos(context.Background(), id, 5, false)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, vidID(3), videos[0].ID, "playlist item id must not be taken as the video id")
}

func TestInvalidateChannel_DropsSlots(t *testing.T) {
	id := chanID('e')
	f := newYTFixture(t, map[string]route{
		"playlistItems": static(200, itemsBody(videoItem(vidID(4), "up", testEpoch))),
	})
	ctx := context.Background()

	_, err := f.yt.ChannelVideos(ctx, id, 5, false)
	require.NoError(t, err)
	_, err = f.yt.ChannelVideos(ctx, id, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.api.hitsFor("playlistItems"))

	slots, err := f.yt.InvalidateChannel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"channel_" + id + ".json", "uploads_" + id + ".json"}, slots)

	_, err = f.yt.ChannelVideos(ctx, id, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.api.hitsFor("playlistItems"))

	_, err = f.yt.InvalidateChannel(ctx, "nope")
	require.ErrorIs(t, err, engine.ErrInvalidURL)
}

func TestInvalidate_AbortsRunningFetch(t *testing.T) {
	id := chanID('d')
	entered := make(chan struct{}, 1)
	f := newYTFixture(t, map[string]route{
		"playlistItems": func(r *http.Request) (int, string) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-r.Context().Done()
			return 200, `{"items":[]}`
		},
	})

	errc := make(chan error, 1)
	go func() {
		_, err := f.yt.ChannelVideos(context.Background(), id, 5, false)
		errc <- err
	}()
	<-entered

	_, err := f.yt.InvalidateChannel(context.Background(), id)
	require.NoError(t, err)
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("running fetch was not aborted")
	}
	assert.Equal(t, 0, f.yt.Inflight().Len())
}

func TestVideos_ChunksAndFilters(t *testing.T) {
	var mu sync.Mutex
	var batches []int
	f := newYTFixture(t, map[string]route{
		"videos": func(r *http.Request) (int, string) {
			ids := strings.Split(r.URL.Query().Get("id"), ",")
			mu.Lock()
			batches = append(batches, len(ids))
			mu.Unlock()
			items := make([]string, 0, len(ids))
			for _, id := range ids {
				items = append(items, videoItem(id, "t", testEpoch))
			}
			return 200, itemsBody(items...)
		},
	})
	ids := []string{"bad id", vidID(0)}
	for i := range 60 {
		ids = append(ids, vidID(i))
	}

	videos, err := f.yt.Videos(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, videos, 60)
	assert.Equal(t, []int{50, 10}, batches)
}

func TestSubscriptionFeed_MergesNewestFirst(t *testing.T) {
	a, b, broken := chanID('a'), chanID('b'), chanID('c')
	f := newYTFixture(t, map[string]route{
		"playlistItems": func(r *http.Request) (int, string) {
			switch r.URL.Query().Get("playlistId") {
			case "UU" + a[2:]:
				return 200, itemsBody(
					videoItem(vidID(1), "a1", testEpoch.Add(-1*time.Hour)),
					videoItem(vidID(2), "a2", testEpoch.Add(-5*time.Hour)))
			case "UU" + b[2:]:
				return 200, itemsBody(videoItem(vidID(3), "b1", testEpoch.Add(-2*time.Hour)))
			}
			return 404, `{"error":{"code":404,"message":"playlist not found"}}`
		},
	})

	videos, err := f.yt.SubscriptionFeed(context.Background(), []string{a, b, broken, a}, 10, false)
	require.NoError(t, err)
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	assert.Equal(t, []string{vidID(1), vidID(3), vidID(2)}, ids)

	videos, err = f.yt.SubscriptionFeed(context.Background(), []string{a, b}, 2, false)
	require.NoError(t, err)
	assert.Len(t, videos, 2)
}

func TestSubscriptionFeed_QuotaAborts(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"playlistItems": static(403, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`),
	})
	_, err := f.yt.SubscriptionFeed(context.Background(), []string{chanID('a'), chanID('b')}, 10, false)
	require.ErrorIs(t, err, engine.ErrQuotaExceeded)
	assert.Equal(t, engine.AlertQuotaExceeded, engine.Classify(err).Kind)
}

func TestSubscriptionFeed_AllChannelsFail(t *testing.T) {
	f := newYTFixture(t, map[string]route{
		"playlistItems": static(404, `{"error":{"code":404,"message":"playlist not found"}}`),
	})
	_, err := f.yt.SubscriptionFeed(context.Background(), []string{chanID('a')}, 10, false)
	var httpErr *engine.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
}

func TestSubscriptionFeed_NoChannels(t *testing.T) {
	f := newYTFixture(t, nil)
	_, err := f.yt.SubscriptionFeed(context.Background(), nil, 10, false)
	require.ErrorIs(t, err, engine.ErrNoResults)
}

func TestCacheSlot_Deterministic(t *testing.T) {
	a := cacheSlot("search", "go", "x=1")
	assert.Equal(t, a, cacheSlot("search", "go", "x=1"))
	assert.NotEqual(t, a, cacheSlot("search", "go", "x=2"))
	assert.True(t, strings.HasPrefix(a, "search_"))
	assert.True(t, strings.HasSuffix(a, ".json"))
}

func TestVideoIDFrom(t *testing.T) {
	id := vidID(9)
	tests := []struct {
		in, want string
	}{
		{id, id},
		{" " + id + " ", id},
		{"https://www.youtube.com/watch?v=" + id + "&t=42", id},
		{"https://youtu.be/" + id, id},
		{"https://www.youtube.com/shorts/" + id, id},
		{"https://example.com/" + id, ""},
		{"https://www.youtube.com/watch?v=short", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VideoIDFrom(tt.in), tt.in)
	}
}
