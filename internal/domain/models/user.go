package models

import "time"

// User представляет пользователя мини-программы; идентификация по openid из WeChat OAuth
type User struct {
	ID              int64      `json:"id"`
	OpenID          string     `json:"openid"`
	Nickname        string     `json:"nickname"`
	Avatar          string     `json:"avatar"`
	AccessToken     *string    `json:"-"`
	TokenExpireTime *time.Time `json:"-"`
}
