package repository

import (
	"fmt"

	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
)

func errReleased(op string) error {
	return fault.New(op, fault.ErrConflict, "results already released")
}

func errNoEvaluation(op string, key model.PairKey) error {
	return fault.New(op, fault.ErrNotFound, "no evaluation for pair", key.EvaluatorID, key.TeamID)
}

func errScaleLocked(op string, count int) error {
	return fault.New(op, fault.ErrState, fmt.Sprintf("scale cannot change once evaluations exist (%d stored)", count))
}

func wrapCtx(op string, err error) error {
	return fault.WrapKind(op, fault.ErrStorage, err)
}
