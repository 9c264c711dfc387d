package backfill

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const (
	YouTubeAPIURL   = "https://www.googleapis.com/youtube/v3"
	youtubeWatchURL = "https://www.youtube.com/watch?v="
)

// Video is one playlist entry.
type Video struct {
	ID    string
	Title string
}

// URL is the public watch link for v.
func (v Video) URL() string {
	return youtubeWatchURL + v.ID
}

// VideoLister returns the most recent videos of a playlist, newest first.
type VideoLister interface {
	RecentVideos(ctx context.Context, playlistID string, max int) ([]Video, error)
}

// JSONGetter is implemented by httpclient.Client.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

type playlistItemsResponse struct {
	Items []struct {
		Snippet struct {
			Title      string `json:"title"`
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

// YouTubeClient lists playlist items through the YouTube Data API.
type YouTubeClient struct {
	http    JSONGetter
	baseURL string
	apiKey  string
}

// NewYouTubeClient uses YouTubeAPIURL when baseURL is empty.
func NewYouTubeClient(client JSONGetter, baseURL, apiKey string) *YouTubeClient {
	if baseURL == "" {
		baseURL = YouTubeAPIURL
	}
	return &YouTubeClient{http: client, baseURL: baseURL, apiKey: apiKey}
}

func (c *YouTubeClient) RecentVideos(ctx context.Context, playlistID string, max int) ([]Video, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("maxResults", strconv.Itoa(max))
	q.Set("playlistId", playlistID)
	q.Set("key", c.apiKey)

	var resp playlistItemsResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/playlistItems?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to list playlist %s: %w", playlistID, err)
	}

	videos := make([]Video, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Snippet.ResourceID.VideoID == "" {
			continue
		}
		videos = append(videos, Video{ID: it.Snippet.ResourceID.VideoID, Title: it.Snippet.Title})
	}
	return videos, nil
}
