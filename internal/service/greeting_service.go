package service

import (
	"math/rand"
	"strings"
)

// 开场白模板，{user_name} 会被替换成用户名。
var greetingTemplates = [...]string{
	"안녕하세요, {user_name}! 오늘 하루는 어떠셨어요?",
	"반가워요, {user_name}! 오늘 기분은 어떠신가요?",
	"안녕하세요, {user_name}! 좋은 하루 보내고 계신가요?",
	"안녕, {user_name}! 오늘 무슨 일이 있었나요?",
	"안녕하세요, {user_name}! 오늘은 무슨 계획이 있으신가요?",
	"안녕하세요, {user_name}! 요즘 어떻게 지내세요?",
	"안녕, {user_name}! 최근에 특별한 일이 있었나요?",
	"안녕하세요, {user_name}! 오늘 하루는 어떻게 보내셨나요?",
	"안녕, {user_name}! 요즘 컨디션은 어떤가요?",
	"안녕하세요, {user_name}! 요즘 무슨 생각을 하고 계신가요?",
}

// GreetingService 随机挑选一条开场白。
type GreetingService interface {
	Greet(userName, modelName string) string
}

type greetingService struct {
	intN func(n int) int
}

// NewGreetingService 创建 GreetingService。intN 为 nil 时使用 math/rand。
func NewGreetingService(intN func(n int) int) GreetingService {
	if intN == nil {
		intN = rand.Intn
	}
	return &greetingService{intN: intN}
}

// Greet 等概率返回十条开场白之一。modelName 目前不参与模板。
func (s *greetingService) Greet(userName, _ string) string {
	return fillGreeting(greetingTemplates[s.intN(len(greetingTemplates))], userName)
}

// Greetings 返回为 userName 填充后的全部开场白。
func Greetings(userName string) []string {
	out := make([]string, len(greetingTemplates))
	for i, tpl := range greetingTemplates {
		out[i] = fillGreeting(tpl, userName)
	}
	return out
}

func fillGreeting(tpl, userName string) string {
	return strings.ReplaceAll(tpl, "{user_name}", userName)
}
