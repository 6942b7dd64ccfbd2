package launcher

import (
	"context"

	"github.com/axia-network/axia-launch/chainspec"
	"go.uber.org/zap"
)

// resolver reads the allychain id a binary writes in its generated spec.
// Results are cached by binary and chain.
type resolver struct {
	log   *zap.Logger
	tool  chainspec.Tool
	cache map[string]string
}

func newResolver(log *zap.Logger, tool chainspec.Tool) *resolver {
	return &resolver{
		log:   log,
		tool:  tool,
		cache: make(map[string]string),
	}
}

func (r *resolver) resolve(ctx context.Context, bin, chain string) (string, error) {
	key := bin + "|" + chain
	if id, ok := r.cache[key]; ok {
		return id, nil
	}
	id, err := r.tool.AllychainID(ctx, bin, chain)
	if err != nil {
		return "", err
	}
	r.log.Debug("resolved allychain id", zap.String("bin", bin), zap.String("chain", chain), zap.String("id", id))
	r.cache[key] = id
	return id, nil
}
