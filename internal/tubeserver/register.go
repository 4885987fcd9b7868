// Package tubeserver exposes the YouTube engine as MCP tools.
package tubeserver

import (
	"context"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Deps are the engine components the tools operate on.
type Deps struct {
	YouTube  *sources.YouTube
	Client   *engine.Client
	Settings *store.Settings
	Secrets  store.Secrets
	Cache    engine.CacheBackend
}

type service struct {
	Deps
}

// RegisterTools registers all go_tube tools on the given MCP server and
// returns how many were added.
func RegisterTools(server *mcp.Server, d Deps) int {
	s := &service{Deps: d}
	tools := []func(*mcp.Server){
		s.registerTrending,
		s.registerSearch,
		s.registerChannel,
		s.registerVideos,
		s.registerFeed,
		s.registerSubscriptionsImport,
		s.registerQuotaStatus,
		s.registerQuotaReset,
		s.registerAPIKeysSet,
		s.registerCacheClear,
		s.registerCacheTTLSet,
	}
	for _, register := range tools {
		register(server)
	}
	return len(tools)
}

// VideoView is a video as returned to MCP clients.
type VideoView struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ChannelID    string `json:"channel_id,omitempty"`
	ChannelTitle string `json:"channel_title,omitempty"`
	Description  string `json:"description,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"` // RFC 3339
	Duration     string `json:"duration,omitempty"`
	Views        int64  `json:"views,omitempty"`
	Likes        int64  `json:"likes,omitempty"`
}

func toViews(videos []engine.Video) []VideoView {
	out := make([]VideoView, 0, len(videos))
	for _, v := range videos {
		view := VideoView{
			ID:           v.ID,
			Title:        v.Title,
			URL:          v.URL,
			ChannelID:    v.ChannelID,
			ChannelTitle: v.ChannelTitle,
			Description:  v.Description,
			Thumbnail:    v.Thumbnail,
			Duration:     v.Duration,
			Views:        v.ViewCount,
			Likes:        v.LikeCount,
		}
		if !v.PublishedAt.IsZero() {
			view.PublishedAt = v.PublishedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, view)
	}
	return out
}

// VideoListOutput is the common result of list tools.
type VideoListOutput struct {
	Query  string      `json:"query,omitempty"`
	Region string      `json:"region,omitempty"`
	Count  int         `json:"count"`
	Videos []VideoView `json:"videos"`
}

func videoList(videos []engine.Video) VideoListOutput {
	views := toViews(videos)
	return VideoListOutput{Count: len(views), Videos: views}
}

// cacheClearer is implemented by cache backends that can drop every slot.
type cacheClearer interface {
	Clear(ctx context.Context) (int, error)
}
