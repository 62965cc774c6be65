package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/vistry-ai/vistry/internal/db"
)

// HSetMulti stores multiple hashes in a single DoMulti round-trip and reports
// the outcome of each command. The submission is one pipelined call; the
// per-item errors let the caller surface partial failures instead of
// trusting the bulk write blindly.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) []error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmd := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	outcomes := make([]error, len(items))
	for i, res := range results {
		if err := res.Error(); err != nil {
			outcomes[i] = &db.Error{Op: db.OpHSet, Err: err}
		}
	}
	return outcomes
}
