package model

import (
	"fmt"
	"time"
)

// LocalTime 以 "YYYY-MM-DD HH:MM:SS" 格式序列化时间。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// ExchangeView 是归档问答对外展示的结构。
type ExchangeView struct {
	ID        uint      `json:"id"`
	ModelName string    `json:"modelName"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt LocalTime `json:"createdAt"`
}

// NewExchangeView 将数据库记录转换为展示结构。
func NewExchangeView(e ChatExchange) ExchangeView {
	return ExchangeView{
		ID:        e.ID,
		ModelName: e.ModelName,
		Message:   e.Message,
		Response:  e.Response,
		CreatedAt: LocalTime(e.CreatedAt),
	}
}
