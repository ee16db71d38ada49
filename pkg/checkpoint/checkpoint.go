// Package checkpoint provides resume capability for interrupted runs.
// A snapshot captures enough state to continue a simulation mid-scan:
// the step counter, the per-rank temperature field, and the recorder's
// event buffer and melt history.
package checkpoint

import (
	"context"
	"time"

	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/errors"
	"github.com/meltflow/meltflow/pkg/solidify"
)

// RankState is the saved state of one rank's slab.
type RankState struct {
	Rank int `json:"rank"`

	// Owned extents; a snapshot only restores onto an identical
	// decomposition.
	NX int `json:"nx"`
	NY int `json:"ny"`
	NZ int `json:"nz"`

	Temperature []float64        `json:"temperature"`
	MeltHistory []float64        `json:"melt_history"`
	Events      []solidify.Event `json:"events"`
}

// Snapshot is one saved run state.
type Snapshot struct {
	ID      string    `json:"id"`
	Deck    string    `json:"deck"`
	Step    int       `json:"step"`
	Time    float64   `json:"time"`
	Ranks   int       `json:"ranks"`
	SavedAt time.Time `json:"saved_at"`

	States []RankState `json:"states"`
}

// Backend stores and retrieves snapshots.
type Backend interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error

	// List returns the stored snapshot IDs.
	List(ctx context.Context) ([]string, error)
}

// NewBackend builds the backend named by the deck.
func NewBackend(ctx context.Context, cfg config.Checkpoint) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalBackend(cfg.Dir)
	case "redis":
		return NewRedisBackend(DefaultRedisConfig(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database))
	case "s3":
		return NewS3Backend(ctx, DefaultS3Config(cfg.S3))
	default:
		return nil, errors.New(errors.CodeInvalidValue, "unknown checkpoint backend").
			WithContext("backend", cfg.Backend)
	}
}

// Validate checks that a snapshot matches the decomposition it is being
// restored onto.
func (s *Snapshot) Validate(ranks int) error {
	if s.Ranks != ranks {
		return errors.New(errors.CodeRankMismatch, "checkpoint rank count does not match run").
			WithContext("checkpoint_ranks", s.Ranks).
			WithContext("run_ranks", ranks)
	}
	if len(s.States) != ranks {
		return errors.New(errors.CodeRankMismatch, "checkpoint is missing rank states").
			WithContext("states", len(s.States))
	}
	return nil
}

// State returns the saved state for one rank.
func (s *Snapshot) State(rank int) *RankState {
	for i := range s.States {
		if s.States[i].Rank == rank {
			return &s.States[i]
		}
	}
	return nil
}
