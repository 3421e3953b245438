package model

import (
	"slices"
	"time"
)

// User 用户，Following/Followers 作为集合使用
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username" validate:"required,min=2,max=32"`
	Email          string    `json:"email" validate:"required,email"`
	PasswordHash   string    `json:"passwordHash,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	FullName       string    `json:"fullName,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Following      []string  `json:"following"`
	Followers      []string  `json:"followers"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (u User) GetID() string { return u.ID }

// IsFollowing 是否已关注 id
func (u *User) IsFollowing(id string) bool { return slices.Contains(u.Following, id) }

// Public 去掉本地凭据后的副本
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Summary 作者/参与者摘要
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture}
}

// UserSummary 列表中携带的用户摘要
type UserSummary struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// ProfilePatch 资料更新，nil 字段不修改
type ProfilePatch struct {
	Username       *string `json:"username,omitempty"`
	Email          *string `json:"email,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	FullName       *string `json:"fullName,omitempty"`
	Bio            *string `json:"bio,omitempty"`
}

// Apply 把 patch 合并到 u
func (p ProfilePatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.ProfilePicture != nil {
		u.ProfilePicture = *p.ProfilePicture
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
}

// AddToSet 追加不存在的元素，返回是否发生变化
func AddToSet(set []string, id string) ([]string, bool) {
	if slices.Contains(set, id) {
		return set, false
	}
	return append(set, id), true
}

// RemoveFromSet 删除元素，返回是否发生变化
func RemoveFromSet(set []string, id string) ([]string, bool) {
	idx := slices.Index(set, id)
	if idx < 0 {
		return set, false
	}
	out := make([]string, 0, len(set)-1)
	for _, v := range set {
		if v != id {
			out = append(out, v)
		}
	}
	return out, true
}
