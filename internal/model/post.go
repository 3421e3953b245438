package model

import "time"

// Post 帖子，Likes 为点赞用户集合
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ImageURL  string    `json:"imageUrl"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Likes     []string  `json:"likes"`
	Comments  []Comment `json:"comments"`
}

func (p Post) GetID() string { return p.ID }

// Comment 评论，归属于 Post
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostWithUser feed 展示用
type PostWithUser struct {
	Post
	User UserSummary `json:"user"`
}

// CommentWithUser 带作者摘要的评论，作者不存在时 User 为 nil
type CommentWithUser struct {
	Comment
	User *UserSummary `json:"user"`
}
