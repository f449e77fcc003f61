package collect

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/TobiSchelling/reelsmith/internal/config"
)

// RedditSource reads subreddit listings through the Reddit API.
type RedditSource struct {
	client *reddit.Client
}

// NewRedditSource authenticates with script-app credentials when they are
// present in the environment and falls back to a read-only client otherwise.
func NewRedditSource(cfg config.Reddit) (*RedditSource, error) {
	creds := reddit.Credentials{
		ID:       os.Getenv(cfg.ClientIDEnv),
		Secret:   os.Getenv(cfg.ClientSecretEnv),
		Username: os.Getenv(cfg.UsernameEnv),
		Password: os.Getenv(cfg.PasswordEnv),
	}

	var (
		client *reddit.Client
		err    error
	)
	if creds.ID != "" && creds.Secret != "" && creds.Username != "" && creds.Password != "" {
		client, err = reddit.NewClient(creds, reddit.WithUserAgent(cfg.UserAgent))
	} else {
		client, err = reddit.NewReadonlyClient(reddit.WithUserAgent(cfg.UserAgent))
	}
	if err != nil {
		return nil, fmt.Errorf("creating reddit client: %w", err)
	}
	return &RedditSource{client: client}, nil
}

func (s *RedditSource) Name() string { return "reddit" }

// Listing returns hot posts or the top posts of the last day.
func (s *RedditSource) Listing(ctx context.Context, channel string, sort Sort, limit int) ([]Post, error) {
	var (
		posts []*reddit.Post
		err   error
	)
	switch sort {
	case SortHot:
		posts, _, err = s.client.Subreddit.HotPosts(ctx, channel, &reddit.ListOptions{Limit: limit})
	case SortTopDay:
		posts, _, err = s.client.Subreddit.TopPosts(ctx, channel, &reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: limit},
			Time:        "day",
		})
	default:
		return nil, fmt.Errorf("unsupported sort %q", sort)
	}
	if err != nil {
		return nil, fmt.Errorf("listing r/%s (%s): %w", channel, sort, err)
	}

	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p == nil {
			continue
		}
		out = append(out, fromRedditPost(p, channel))
	}
	return out, nil
}

// TopComments returns up to limit top-level comments in the API's order.
func (s *RedditSource) TopComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	pc, _, err := s.client.Post.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading comments for %s: %w", postID, err)
	}
	return fromRedditComments(pc.Comments, limit), nil
}

func fromRedditPost(p *reddit.Post, channel string) Post {
	post := Post{
		ID:          p.ID,
		Channel:     p.SubredditName,
		Title:       p.Title,
		Author:      p.Author,
		Score:       p.Score,
		NumComments: p.NumberOfComments,
		URL:         p.URL,
		SelfText:    p.Body,
		Permalink:   p.Permalink,
		IsSelf:      p.IsSelfPost,
	}
	if post.Channel == "" {
		post.Channel = channel
	}
	if p.Created != nil {
		post.CreatedUTC = p.Created.Time.UTC()
	}
	return post
}

func fromRedditComments(comments []*reddit.Comment, limit int) []Comment {
	out := make([]Comment, 0, limit)
	for _, c := range comments {
		if len(out) >= limit {
			break
		}
		if c == nil {
			continue
		}
		body := strings.TrimSpace(c.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}
		out = append(out, Comment{Author: c.Author, Body: body, Score: c.Score})
	}
	return out
}
