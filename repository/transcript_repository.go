package repository

import (
	"context"

	"github.com/akinalp/mqvi-client/models"
)

// TranscriptRepository, kanal transcript'lerinin yerel cache'i.
//
// ReplaceChannel: Kanalın snapshot'ını atomik olarak değiştirir (wholesale replace).
// Append: Push ile gelen tek mesajı ekler; aynı id zaten varsa no-op.
// GetByChannel: Son snapshot'ı zaman sırasıyla döner; hiç yoksa boş liste.
type TranscriptRepository interface {
	ReplaceChannel(ctx context.Context, channel string, msgs []models.Message) error
	Append(ctx context.Context, msg models.Message) error
	GetByChannel(ctx context.Context, channel string) ([]models.Message, error)
}
