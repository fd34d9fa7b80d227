package session

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"main/pkg/conn"
)

// PGStore persists sessions in PostgreSQL, one row per bot.
type PGStore struct {
	db    *gorm.DB
	botID string
}

type sessionRecord struct {
	BotID     string    `gorm:"primaryKey;column:bot_id"`
	LastSN    uint64    `gorm:"column:last_sn"`
	SessionID string    `gorm:"column:session_id"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (sessionRecord) TableName() string {
	return "gateway_sessions"
}

// NewPGStore migrates the sessions table and binds the store to one bot id.
func NewPGStore(client *conn.Client, botID string) (*PGStore, error) {
	if client == nil || client.DB() == nil {
		return nil, errors.New("session: nil postgres client")
	}
	if botID == "" {
		return nil, errors.New("session: empty bot id")
	}
	if err := client.DB().AutoMigrate(&sessionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate gateway_sessions")
	}
	return &PGStore{db: client.DB(), botID: botID}, nil
}

func (p *PGStore) Load(ctx context.Context) (*Session, error) {
	var record sessionRecord
	err := p.db.WithContext(ctx).First(&record, "bot_id = ?", p.botID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load session row")
	}
	return &Session{LastSN: record.LastSN, SessionID: record.SessionID}, nil
}

func (p *PGStore) Save(ctx context.Context, sess Session) error {
	record := sessionRecord{
		BotID:     p.botID,
		LastSN:    sess.LastSN,
		SessionID: sess.SessionID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := p.db.WithContext(ctx).Save(&record).Error; err != nil {
		return errors.Wrap(err, "save session row")
	}
	return nil
}

func (p *PGStore) Clear(ctx context.Context) error {
	err := p.db.WithContext(ctx).Delete(&sessionRecord{}, "bot_id = ?", p.botID).Error
	if err != nil {
		return errors.Wrap(err, "clear session row")
	}
	return nil
}
