package service

import (
	"context"

	"github.com/Brownie44l1/skinlens/internal/domain/port"
	"github.com/Brownie44l1/skinlens/internal/explain"
)

// ChatService forwards a message to the language model with the medical
// chatbot preamble.
type ChatService struct {
	generator port.TextGenerator
}

func NewChatService(generator port.TextGenerator) *ChatService {
	return &ChatService{generator: generator}
}

func (s *ChatService) Reply(ctx context.Context, message string) (string, error) {
	return s.generator.Generate(ctx, explain.ChatPrompt(message))
}
