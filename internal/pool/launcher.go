package pool

import (
	"context"

	"github.com/rs/zerolog"

	"deepleelad/internal/engine"
	"deepleelad/internal/gtp"
)

// GTPLauncher starts engines as GTP child processes.
type GTPLauncher struct {
	Logger zerolog.Logger
}

func (l GTPLauncher) Launch(ctx context.Context, p engine.Profile, args []string) (Engine, error) {
	log := l.Logger.With().Str("kind", p.Kind).Logger()
	c, err := gtp.Start(ctx, p.Exec, args, gtp.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return c, nil
}
