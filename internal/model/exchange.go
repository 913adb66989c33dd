package model

import "time"

// ChatExchange 是归档到关系型数据库中的一次问答。
type ChatExchange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserName  string    `gorm:"type:varchar(191);index:idx_user_model;not null" json:"userName"`
	ModelName string    `gorm:"type:varchar(191);index:idx_user_model;not null" json:"modelName"`
	Message   string    `gorm:"type:text" json:"message"`
	Response  string    `gorm:"type:text" json:"response"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ChatExchange) TableName() string {
	return "chat_exchanges"
}

// TranscriptEntry 是 Redis 中保存的单条对话记录。
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
