package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-backed message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	model := domain.MessageModel{
		Sender:   msg.Sender,
		Receiver: msg.Receiver,
		Body:     msg.Body,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	msg.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormMessageRepository) GetConversation(ctx context.Context, identityA, identityB string) ([]domain.Message, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)",
			identityA, identityB, identityB, identityA).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	messages := make([]domain.Message, 0, len(models))
	for _, m := range models {
		messages = append(messages, m.Domain())
	}
	return messages, nil
}
