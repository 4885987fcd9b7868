package tubeserver

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// --- youtube_trending ---

type TrendingInput struct {
	Region  string `json:"region,omitempty" jsonschema:"ISO 3166-1 alpha-2 region code (default: server DEFAULT_REGION or US)"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Max videos to return (default 25, max 50)"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"Bypass the cache and refetch"`
}

func (s *service) registerTrending(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_trending",
		Description: "Most popular YouTube videos for a region. Returns title, channel, URL, duration and view counts. Cached per region; costs 1 quota unit on a miss.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.trending)
}

func (s *service) trending(ctx context.Context, _ *mcp.CallToolRequest, input TrendingInput) (*mcp.CallToolResult, VideoListOutput, error) {
	region := input.Region
	if region == "" {
		region = engine.Cfg.DefaultRegion
	}
	region = engine.NormRegion(region)
	videos, err := s.YouTube.Trending(ctx, region, toolutil.Limit(input.Limit, 25, 50), input.Refresh)
	if err != nil {
		return nil, VideoListOutput{}, toolutil.Fail("youtube_trending", err)
	}
	out := videoList(videos)
	out.Region = region
	return nil, out, nil
}

// --- youtube_search ---

type SearchInput struct {
	Query    string `json:"query" jsonschema:"Search keywords"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Max videos to return (default 10, max 50)"`
	Language string `json:"language,omitempty" jsonschema:"Preferred result language, ISO 639-1 (default: all)"`
	Region   string `json:"region,omitempty" jsonschema:"Region code to bias results"`
	Order    string `json:"order,omitempty" jsonschema:"relevance (default), date, viewCount or rating"`
	Refresh  bool   `json:"refresh,omitempty" jsonschema:"Bypass the cache and refetch"`
}

func (s *service) registerSearch(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_search",
		Description: "Search YouTube videos. Costs 100 quota units per uncached query, so prefer youtube_feed or youtube_channel when the channel is known.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.search)
}

func (s *service) search(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, VideoListOutput, error) {
	videos, err := s.YouTube.Search(ctx, input.Query, sources.SearchOptions{
		Limit:    toolutil.Limit(input.Limit, 10, 50),
		Language: input.Language,
		Region:   input.Region,
		Order:    input.Order,
		Refresh:  input.Refresh,
	})
	if err != nil {
		return nil, VideoListOutput{}, toolutil.Fail("youtube_search", err)
	}
	out := videoList(videos)
	out.Query = input.Query
	return nil, out, nil
}

// --- youtube_channel ---

type ChannelInput struct {
	Channel string `json:"channel" jsonschema:"Channel ID (UC...), channel URL or @handle"`
	Videos  int    `json:"videos,omitempty" jsonschema:"Number of recent uploads to include (default 0, max 50)"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"Bypass the cache and refetch"`
}

type ChannelOutput struct {
	Channel engine.Channel `json:"channel"`
	Videos  []VideoView    `json:"videos,omitempty"`
}

func (s *service) registerChannel(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_channel",
		Description: "Channel details (title, subscribers, video count) and optionally its most recent uploads.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.channel)
}

func (s *service) channel(ctx context.Context, _ *mcp.CallToolRequest, input ChannelInput) (*mcp.CallToolResult, ChannelOutput, error) {
	id := input.Channel
	if ref := sources.ChannelRef(id); ref != "" {
		id = ref
	}
	ch, err := s.YouTube.Channel(ctx, id, input.Refresh)
	if err != nil {
		return nil, ChannelOutput{}, toolutil.Fail("youtube_channel", err)
	}
	out := ChannelOutput{Channel: *ch}
	if input.Videos > 0 {
		videos, err := s.YouTube.ChannelVideos(ctx, ch.ID, toolutil.Limit(input.Videos, 10, 50), input.Refresh)
		if err != nil {
			return nil, ChannelOutput{}, toolutil.Fail("youtube_channel", err)
		}
		out.Videos = toViews(videos)
	}
	return nil, out, nil
}

// --- youtube_feed ---

type FeedInput struct {
	Channels []string `json:"channels,omitempty" jsonschema:"Channel IDs or URLs (default: imported subscriptions)"`
	Limit    int      `json:"limit,omitempty" jsonschema:"Max videos to return (default 50, max 200)"`
	Refresh  bool     `json:"refresh,omitempty" jsonschema:"Bypass the cache and refetch"`
}

type FeedOutput struct {
	Channels int         `json:"channels"`
	Count    int         `json:"count"`
	Videos   []VideoView `json:"videos"`
}

func (s *service) registerFeed(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_feed",
		Description: "Subscription feed: the latest uploads of the given channels (or the imported subscriptions), merged newest first. Costs 1 quota unit per uncached channel.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.feed)
}

func (s *service) feed(ctx context.Context, _ *mcp.CallToolRequest, input FeedInput) (*mcp.CallToolResult, FeedOutput, error) {
	var ids []string
	for _, c := range input.Channels {
		if id := sources.ChannelIDFrom(c); id != "" {
			ids = append(ids, id)
		}
	}
	if len(input.Channels) == 0 {
		stored, err := s.Settings.Subscriptions(ctx)
		if err != nil {
			return nil, FeedOutput{}, toolutil.Fail("youtube_feed", err)
		}
		ids = stored
	}
	if len(ids) == 0 {
		return nil, FeedOutput{}, toolutil.Fail("youtube_feed", fmt.Errorf("no channels to load: %w", engine.ErrNoResults))
	}

	var videos []engine.Video
	err := engine.TrackOperation(ctx, "youtube_feed", func(ctx context.Context) error {
		var err error
		videos, err = s.YouTube.SubscriptionFeed(ctx, ids, toolutil.Limit(input.Limit, 50, 200), input.Refresh)
		return err
	})
	if err != nil {
		return nil, FeedOutput{}, toolutil.Fail("youtube_feed", err)
	}
	views := toViews(videos)
	return nil, FeedOutput{Channels: len(ids), Count: len(views), Videos: views}, nil
}

// --- youtube_videos ---

type VideosInput struct {
	Videos []string `json:"videos" jsonschema:"Video IDs or video URLs (watch, youtu.be, shorts); up to 200"`
}

func (s *service) registerVideos(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_videos",
		Description: "Full details (duration, views, likes, description) for specific videos. Costs 1 quota unit per 50 videos; not cached.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.videos)
}

func (s *service) videos(ctx context.Context, _ *mcp.CallToolRequest, input VideosInput) (*mcp.CallToolResult, VideoListOutput, error) {
	ids := make([]string, 0, len(input.Videos))
	for _, v := range input.Videos {
		if id := sources.VideoIDFrom(v); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 200 {
		ids = ids[:200]
	}
	videos, err := s.YouTube.Videos(ctx, ids)
	if err != nil {
		return nil, VideoListOutput{}, toolutil.Fail("youtube_videos", err)
	}
	return nil, videoList(videos), nil
}
