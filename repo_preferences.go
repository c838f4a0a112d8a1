package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Preferences is the durable key-value repository backing the Store
// interface. Keys are unique; Set upserts by key.
type Preferences interface {
	repository.Repository[*Preference]

	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) (*Preference, error)
	SetValueTx(ctx context.Context, tx bun.IDB, key, value string) (*Preference, error)
	Unset(ctx context.Context, key string) error
}

type preferences struct {
	repository.Repository[*Preference]
	db *bun.DB
}

var (
	_ Preferences                        = (*preferences)(nil)
	_ repository.Repository[*Preference] = (*preferences)(nil)
)

// NewPreferencesRepository wires the preferences table.
func NewPreferencesRepository(db *bun.DB) Preferences {
	repo := repository.NewRepository[*Preference](db, repository.ModelHandlers[*Preference]{
		NewRecord: func() *Preference { return &Preference{} },
		GetID: func(p *Preference) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Preference, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "key"
		},
	})

	return &preferences{
		Repository: repo,
		db:         db,
	}
}

func (p *preferences) GetValue(ctx context.Context, key string) (string, bool, error) {
	record, err := p.Repository.GetByIdentifier(ctx, key)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return record.Value, true, nil
}

func (p *preferences) SetValue(ctx context.Context, key, value string) (*Preference, error) {
	return p.SetValueTx(ctx, p.db, key, value)
}

func (p *preferences) SetValueTx(ctx context.Context, tx bun.IDB, key, value string) (*Preference, error) {
	now := time.Now()

	existing, err := p.Repository.GetByIdentifierTx(ctx, tx, key)
	if err == nil {
		existing.Value = value
		existing.UpdatedAt = &now
		return p.Repository.UpdateTx(ctx, tx, existing, repository.UpdateByID(existing.ID.String()))
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &Preference{
		ID:        uuid.New(),
		Key:       key,
		Value:     value,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	return p.Repository.CreateTx(ctx, tx, record)
}

func (p *preferences) Unset(ctx context.Context, key string) error {
	_, err := p.db.NewDelete().
		Model((*Preference)(nil)).
		Where("?TableAlias.key = ?", key).
		Exec(ctx)
	return err
}

// preferencesStore adapts the repository to the Store interface.
type preferencesStore struct {
	repo Preferences
}

// NewPreferencesStore returns a bun-backed Store over the preferences table.
func NewPreferencesStore(db *bun.DB) Store {
	return &preferencesStore{repo: NewPreferencesRepository(db)}
}

func (s *preferencesStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.GetValue(ctx, key)
}

func (s *preferencesStore) Set(ctx context.Context, key, value string) error {
	_, err := s.repo.SetValue(ctx, key, value)
	return err
}

func (s *preferencesStore) Delete(ctx context.Context, key string) error {
	return s.repo.Unset(ctx, key)
}
