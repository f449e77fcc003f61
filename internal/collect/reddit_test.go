package collect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vartanbeno/go-reddit/v2/reddit"
)

func TestFromRedditPost(t *testing.T) {
	created := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	p := fromRedditPost(&reddit.Post{
		ID:               "abc123",
		Title:            "What is a fact that sounds fake?",
		Author:           "curious_op",
		Score:            5120,
		NumberOfComments: 860,
		Created:          &reddit.Timestamp{Time: created},
		URL:              "https://www.reddit.com/r/AskReddit/comments/abc123/",
		Body:             "Genuinely asking.",
		Permalink:        "/r/AskReddit/comments/abc123/",
		IsSelfPost:       true,
	}, "AskReddit")

	assert.Equal(t, "abc123", p.ID)
	assert.Equal(t, "AskReddit", p.Channel)
	assert.Equal(t, 5120, p.Score)
	assert.Equal(t, 860, p.NumComments)
	assert.Equal(t, created, p.CreatedUTC)
	assert.True(t, p.IsSelf)
}

func TestFromRedditCommentsSkipsDeleted(t *testing.T) {
	comments := []*reddit.Comment{
		{Author: "a", Body: "  top answer  ", Score: 900},
		{Author: "[deleted]", Body: "[deleted]", Score: 10},
		nil,
		{Author: "b", Body: "second", Score: 300},
		{Author: "c", Body: "third", Score: 100},
	}
	got := fromRedditComments(comments, 2)
	assert.Equal(t, []Comment{
		{Author: "a", Body: "top answer", Score: 900},
		{Author: "b", Body: "second", Score: 300},
	}, got)
}
