package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/swarmkb/internal/db"
)

// Append writes a put entry to the stream and materializes the key inside one MULTI/EXEC.
func (s *Store) Append(ctx context.Context, e db.LogEntry) (string, error) {
	xadd := s.b().Xadd().Key(e.Stream).Id("*").FieldValue().
		FieldValue("op", db.LogOpPut).
		FieldValue("key", e.Key).
		FieldValue("data", rueidis.BinaryString(e.Value)).
		Build()
	set := s.b().Set().Key(e.Key).Value(rueidis.BinaryString(e.Value)).Build()
	return s.exec(ctx, xadd, set)
}

// Remove writes a delete entry to the stream and drops the key inside one MULTI/EXEC.
func (s *Store) Remove(ctx context.Context, stream, key string) (string, error) {
	xadd := s.b().Xadd().Key(stream).Id("*").FieldValue().
		FieldValue("op", db.LogOpDelete).
		FieldValue("key", key).
		Build()
	del := s.b().Del().Key(key).Build()
	return s.exec(ctx, xadd, del)
}

// StreamLen returns the number of entries in a stream.
func (s *Store) StreamLen(ctx context.Context, stream string) (int64, error) {
	n, err := s.do(ctx, s.b().Xlen().Key(stream).Build()).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpXLen, Err: err}
	}
	return n, nil
}

// exec runs xadd followed by the given commands in a transaction and returns the stream id.
func (s *Store) exec(ctx context.Context, xadd rueidis.Completed, rest ...rueidis.Completed) (string, error) {
	cmds := make([]rueidis.Completed, 0, len(rest)+3)
	cmds = append(cmds, s.b().Multi().Build(), xadd)
	cmds = append(cmds, rest...)
	cmds = append(cmds, s.b().Exec().Build())

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results[:len(results)-1] {
		if err := res.Error(); err != nil {
			return "", &db.Error{Op: db.OpExec, Err: fmt.Errorf("queue command %d: %w", i, err)}
		}
	}
	replies, err := results[len(results)-1].ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", &db.Error{Op: db.OpExec, Err: db.ErrTxAborted}
		}
		return "", &db.Error{Op: db.OpExec, Err: err}
	}
	if len(replies) == 0 {
		return "", &db.Error{Op: db.OpExec, Err: db.ErrTxAborted}
	}
	for _, r := range replies[1:] {
		if err := r.Error(); err != nil {
			return "", &db.Error{Op: db.OpExec, Err: err}
		}
	}
	id, err := replies[0].ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpXAdd, Err: err}
	}
	return id, nil
}
