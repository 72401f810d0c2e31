package compiler

import (
	"context"
	"errors"

	"github.com/terra-clan/challenge-bot/internal/models"
)

var (
	// ErrRequest wraps network and upstream failures talking to the service.
	ErrRequest = errors.New("compile request failed")

	// ErrMalformedResponse means the service answered with no usable result.
	ErrMalformedResponse = errors.New("invalid compile service response")

	ErrUnsupportedLanguage = errors.New("language not supported by compile service")
)

// Gateway compiles and runs a program on a remote service.
type Gateway interface {
	// Compile returns a result for any completed run, including non-zero exits.
	// Only transport faults and unusable responses are errors.
	Compile(ctx context.Context, req models.CompileRequest) (*models.CompileResult, error)

	// Languages lists the languages the service can currently run.
	Languages(ctx context.Context) ([]models.Language, error)
}

// Supports reports whether g can run lang.
func Supports(ctx context.Context, g Gateway, lang models.Language) (bool, error) {
	langs, err := g.Languages(ctx)
	if err != nil {
		return false, err
	}
	for _, l := range langs {
		if l == lang {
			return true, nil
		}
	}
	return false, nil
}
