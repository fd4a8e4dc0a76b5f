package ports

import (
	"context"

	"go.trai.ch/dake/internal/core/domain"
)

// Executor runs recipe lines through the host's command interpreter. Lines
// execute strictly in sequence; execution stops at the first nonzero exit,
// which is reflected in the result rather than the error. The error return is
// reserved for infrastructure failures (interpreter missing, context cancel).
type Executor interface {
	Run(ctx context.Context, dir string, lines []string) (*domain.RecipeResult, error)
}
