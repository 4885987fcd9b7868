package engine

import "time"

// --- YouTube content types ---

// Video is a single video as presented in feeds, search and trending.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	Description  string    `json:"description,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Duration     string    `json:"duration,omitempty"` // ISO 8601, e.g. PT4M13S
	ViewCount    int64     `json:"view_count,omitempty"`
	LikeCount    int64     `json:"like_count,omitempty"`
}

// Channel is a channel header with its uploads playlist.
type Channel struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	CustomURL       string `json:"custom_url,omitempty"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	SubscriberCount int64  `json:"subscriber_count,omitempty"`
	VideoCount      int64  `json:"video_count,omitempty"`
	UploadsPlaylist string `json:"uploads_playlist,omitempty"`
}

// VideoURL returns the watch URL of a video.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
