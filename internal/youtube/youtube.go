package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tubita/tubita/internal/playlist"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var ErrVideoNotFound = errors.New("video not found")

// Client looks up video metadata through the YouTube Data API.
type Client struct {
	service *yt.Service
}

func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{service: service}, nil
}

func (c *Client) Lookup(ctx context.Context, id string) (playlist.VideoEntry, error) {
	resp, err := c.service.Videos.List([]string{"snippet", "contentDetails"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return playlist.VideoEntry{}, fmt.Errorf("list video %s: %w", id, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return playlist.VideoEntry{}, fmt.Errorf("%s: %w", id, ErrVideoNotFound)
	}

	item := resp.Items[0]
	entry := playlist.VideoEntry{
		ID:           id,
		Title:        item.Snippet.Title,
		ChannelTitle: item.Snippet.ChannelTitle,
		ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
	}
	if entry.Title == "" {
		entry.Title = id
	}
	if entry.ThumbnailURL == "" {
		entry.ThumbnailURL = playlist.ThumbnailURL(id)
	}
	if item.ContentDetails != nil {
		if secs, ok := ParseDuration(item.ContentDetails.Duration); ok {
			entry.DurationSeconds = secs
		}
	}
	return entry, nil
}

func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration such as PT1H2M10S to seconds.
func ParseDuration(s string) (int, bool) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, false
	}
	units := []int{24 * 3600, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}
