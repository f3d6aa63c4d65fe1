package account

import (
	"context"

	"github.com/rs/zerolog/log"
)

type Service struct {
	repo      Repository
	freeQuota int
}

// NewService creates the account service. New users start with freeQuota free generations.
func NewService(repo Repository, freeQuota int) *Service {
	if freeQuota < 0 {
		freeQuota = 0
	}
	return &Service{repo: repo, freeQuota: freeQuota}
}

// Register makes sure the user row exists.
func (s *Service) Register(ctx context.Context, p Profile) (*User, error) {
	if p.Username == "" {
		p.Username = "username_yoq"
	}
	user, created, err := s.repo.Ensure(ctx, p, s.freeQuota)
	if err != nil {
		log.Error().Err(err).Int64("user_id", p.ID).Msg("failed to register user")
		return nil, err
	}
	if created {
		log.Info().Int64("user_id", p.ID).Str("username", p.Username).Int("free_quota", s.freeQuota).Msg("new user registered")
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}
