package collect

import (
	"context"
	"time"
)

// Sort selects which listing a channel is read from.
type Sort string

const (
	SortHot    Sort = "hot"
	SortTopDay Sort = "top_day"
)

// Post is one listing entry from a content source.
type Post struct {
	ID          string
	Channel     string
	Title       string
	Author      string
	Score       int
	NumComments int
	CreatedUTC  time.Time
	URL         string
	SelfText    string
	Permalink   string
	IsSelf      bool
}

// Comment is a top-level reply to a post.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Score  int    `json:"score"`
}

// Source lists posts for a channel and loads their top comments.
type Source interface {
	Name() string
	Listing(ctx context.Context, channel string, sort Sort, limit int) ([]Post, error)
	TopComments(ctx context.Context, postID string, limit int) ([]Comment, error)
}

// RawPost is the payload persisted to raw/<id>.json.
type RawPost struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	CreatedUTC  float64   `json:"created_utc"`
	URL         string    `json:"url"`
	SelfText    string    `json:"selftext"`
	Permalink   string    `json:"permalink"`
	LinkedText  string    `json:"linked_text,omitempty"`
	Comments    []Comment `json:"comments"`
}

func newRawPost(p Post, comments []Comment) RawPost {
	if comments == nil {
		comments = []Comment{}
	}
	var created float64
	if !p.CreatedUTC.IsZero() {
		created = float64(p.CreatedUTC.Unix())
	}
	return RawPost{
		ID:          p.ID,
		Channel:     p.Channel,
		Title:       p.Title,
		Author:      p.Author,
		Score:       p.Score,
		NumComments: p.NumComments,
		CreatedUTC:  created,
		URL:         p.URL,
		SelfText:    p.SelfText,
		Permalink:   p.Permalink,
		Comments:    comments,
	}
}
