package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// GormConversationRepository implements ConversationRepository using GORM.
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GORM-backed conversation repository.
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

// UpsertPair inserts both directions of the pair, ignoring rows that
// already exist. Both inserts run in one transaction so the directory
// never holds only half of a pair.
func (r *GormConversationRepository) UpsertPair(ctx context.Context, identityA, identityB string) error {
	rows := []domain.ConversationModel{
		{Owner: identityA, Peer: identityB},
		{Owner: identityB, Peer: identityA},
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "peer"}},
			DoNothing: true,
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert conversation pair: %w", err)
	}
	return nil
}

func (r *GormConversationRepository) ListPeers(ctx context.Context, identity string) ([]domain.ConversationSummary, error) {
	var models []domain.ConversationModel
	err := r.db.WithContext(ctx).
		Where("owner = ?", identity).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	peers := make([]domain.ConversationSummary, 0, len(models))
	for _, m := range models {
		peers = append(peers, domain.ConversationSummary{Peer: m.Peer})
	}
	return peers, nil
}
