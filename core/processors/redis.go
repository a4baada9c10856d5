package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ltcombine/core/combiner"
	"ltcombine/core/determinism"
	"ltcombine/core/pipeline"
	"ltcombine/internal/errors"
	"ltcombine/internal/logging"
)

const defaultRedisBatch = 500

// BranchRecord is the JSON stored per combined branch
type BranchRecord struct {
	Index      int      `json:"index"`
	Weight     float64  `json:"weight"`
	OuterIndex int      `json:"outer_index"`
	InnerIndex int      `json:"inner_index"`
	Values     []string `json:"values"`
}

// RedisOption configures a RedisSink
type RedisOption func(*RedisSink)

// WithBatchSize sets how many branches go into one pipelined HSET
func WithBatchSize(n int) RedisOption {
	return func(s *RedisSink) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithRedisLogger sets the logger
func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(s *RedisSink) { s.logger = l }
}

// RedisSink stores every combined branch as field <index> of the hash
// <prefix>branches, and the combination metadata in the hash <prefix>meta.
// Batches are written on the IO executor, one at a time.
type RedisSink struct {
	client *backend.Client
	prefix string
	batch  int
	logger *zap.Logger

	io      pipeline.Executor
	buf     []any
	pending *pipeline.Future
	written int
}

// NewRedisSink creates a sink writing through client under key prefix
func NewRedisSink(client *backend.Client, prefix string, opts ...RedisOption) *RedisSink {
	s := &RedisSink{client: client, prefix: prefix, batch: defaultRedisBatch}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrComponent(s.logger, "redis-sink")
	return s
}

// BranchesKey is the hash holding the branch records
func (s *RedisSink) BranchesKey() string { return s.prefix + "branches" }

// MetaKey is the hash holding the combination metadata
func (s *RedisSink) MetaKey() string { return s.prefix + "meta" }

// Name implements pipeline.Processor
func (s *RedisSink) Name() string { return "redis" }

// Init implements pipeline.Processor
func (s *RedisSink) Init(ctx *combiner.Context, _, ioExec pipeline.Executor) error {
	s.io = ioExec
	levels := make([]string, len(ctx.Levels))
	for i, l := range ctx.Levels {
		levels[i] = l.ShortName()
	}
	levelsJSON, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	fingerprint := determinism.NewIDGenerator("combination").Generate(
		string(levelsJSON),
		strconv.Itoa(ctx.Size()),
		strconv.Itoa(ctx.NumRandomSamples),
		strconv.Itoa(ctx.NumPairwiseSamples),
	)
	bg := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Del(bg, s.BranchesKey(), s.MetaKey())
	pipe.HSet(bg, s.MetaKey(),
		"levels", string(levelsJSON),
		"fingerprint", string(fingerprint),
		"size", ctx.Size(),
		"expected", ctx.ExpectedCombinations,
		"random_samples", ctx.NumRandomSamples,
		"pairwise_samples", ctx.NumPairwiseSamples,
	)
	if _, err := pipe.Exec(bg); err != nil {
		return errors.Wrapf(errors.TypeInput, err, "writing %s", s.MetaKey())
	}
	s.logger.Debug("initialized redis sink", zap.String("key", s.BranchesKey()), zap.Int("batch", s.batch))
	return nil
}

// ProcessBranch implements pipeline.Processor
func (s *RedisSink) ProcessBranch(ctx context.Context, c combiner.Combination) error {
	data, err := json.Marshal(BranchRecord{
		Index:      c.Index,
		Weight:     c.Weight,
		OuterIndex: c.OuterIndex,
		InnerIndex: c.InnerIndex,
		Values:     c.Branch.Prefixes(),
	})
	if err != nil {
		return err
	}
	s.buf = append(s.buf, strconv.Itoa(c.Index), string(data))
	if len(s.buf)/2 >= s.batch {
		return s.flush(ctx)
	}
	return nil
}

// flush waits for the previous batch and submits the buffered one
func (s *RedisSink) flush(ctx context.Context) error {
	if err := s.wait(); err != nil {
		return err
	}
	if len(s.buf) == 0 {
		return nil
	}
	fields := s.buf
	s.buf = nil
	s.pending = s.io.Submit(ctx, func(ctx context.Context) error {
		if err := s.client.HSet(ctx, s.BranchesKey(), fields...).Err(); err != nil {
			return fmt.Errorf("writing %d branches to %s: %w", len(fields)/2, s.BranchesKey(), err)
		}
		return nil
	})
	s.written += len(fields) / 2
	return nil
}

func (s *RedisSink) wait() error {
	if s.pending == nil {
		return nil
	}
	err := s.pending.Wait()
	s.pending = nil
	return err
}

// Close implements pipeline.Processor
func (s *RedisSink) Close() error {
	if err := s.flush(context.Background()); err != nil {
		return err
	}
	if err := s.wait(); err != nil {
		return err
	}
	s.logger.Info("stored combined branches", zap.String("key", s.BranchesKey()), zap.Int("branches", s.written))
	return nil
}
