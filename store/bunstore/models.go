package bunstore

import (
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	remember "github.com/goliatone/go-remember"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PersistentLoginModel is the Bun model for remember-me series
type PersistentLoginModel struct {
	bun.BaseModel `bun:"table:persistent_logins,alias:pl"`

	ID        string    `bun:"id,pk"`
	Series    string    `bun:"series,notnull,unique"`
	Username  string    `bun:"username,notnull"`
	Token     string    `bun:"token,notnull"`
	LastUsed  time.Time `bun:"last_used,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (m *PersistentLoginModel) toDomain() remember.PersistentToken {
	return remember.PersistentToken{
		Username: m.Username,
		Series:   m.Series,
		Token:    m.Token,
		LastUsed: m.LastUsed,
	}
}

func fromDomain(token remember.PersistentToken) *PersistentLoginModel {
	return &PersistentLoginModel{
		ID:        uuid.NewString(),
		Series:    token.Series,
		Username:  token.Username,
		Token:     token.Token,
		LastUsed:  token.LastUsed.UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

func persistentLoginHandlers() repository.ModelHandlers[*PersistentLoginModel] {
	return repository.ModelHandlers[*PersistentLoginModel]{
		NewRecord: func() *PersistentLoginModel {
			return &PersistentLoginModel{}
		},
		GetID: func(record *PersistentLoginModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			id, err := uuid.Parse(strings.TrimSpace(record.ID))
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(record *PersistentLoginModel, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "series"
		},
		GetIdentifierValue: func(record *PersistentLoginModel) string {
			if record == nil {
				return ""
			}
			return record.Series
		},
	}
}
