// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists agent runs to BadgerDB.
//
// # Key Layout
//
//	run/<16-byte run id>                      -> RunMeta
//	cycle/<16-byte run id><8-byte cycle, BE>  -> agent.CycleRecord
//
// Big-endian cycle numbers make badger's key order the cycle order, so a
// prefix scan replays a run from the start. Values are a CRC32 followed by
// deterministic CBOR.
package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/mcaixi/services/aixi/agent"
	storage "github.com/AleutianAI/mcaixi/services/aixi/storage/badger"
)

const (
	runPrefix   = "run/"
	cyclePrefix = "cycle/"
)

// RunMeta describes one run.
type RunMeta struct {
	ID          string            `cbor:"1,keyasint" json:"id"`
	Environment string            `cbor:"2,keyasint" json:"environment"`
	Options     map[string]string `cbor:"3,keyasint,omitempty" json:"options,omitempty"`
	Seed        uint64            `cbor:"4,keyasint" json:"seed"`
	Fingerprint string            `cbor:"5,keyasint" json:"config_fingerprint"`
	StartedAt   time.Time         `cbor:"6,keyasint" json:"started_at"`
	FinishedAt  time.Time         `cbor:"7,keyasint" json:"finished_at,omitzero"`
	StopReason  string            `cbor:"8,keyasint,omitempty" json:"stop_reason,omitempty"`
	Cycles      int               `cbor:"9,keyasint" json:"cycles"`
	TotalReward float64           `cbor:"10,keyasint" json:"total_reward"`
}

// Finished reports whether Finish was called for the run.
func (m RunMeta) Finished() bool { return !m.FinishedAt.IsZero() }

// RunInfo is what the caller knows when a run starts.
type RunInfo struct {
	Environment string
	Options     map[string]string
	Seed        uint64

	// Config is fingerprinted, not stored.
	Config any
}

// Journal reads and writes runs.
//
// Thread Safety: Safe for concurrent use.
type Journal struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// New creates a journal on an open database. The caller owns db.
func New(db *storage.DB, opts ...Option) (*Journal, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	j := &Journal{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start registers a new run and returns its recorder.
//
// Outputs:
//   - *Run: Records cycles for the new run. Call Finish when done.
//   - error: Fingerprint or storage failure
func (j *Journal) Start(ctx context.Context, info RunInfo) (*Run, error) {
	fp := ""
	if info.Config != nil {
		var err error
		if fp, err = Fingerprint(info.Config); err != nil {
			return nil, fmt.Errorf("fingerprint config: %w", err)
		}
	}
	id := uuid.New()
	meta := RunMeta{
		ID:          id.String(),
		Environment: info.Environment,
		Options:     info.Options,
		Seed:        info.Seed,
		Fingerprint: fp,
		StartedAt:   j.now().UTC(),
	}
	if err := j.putMeta(ctx, id, meta); err != nil {
		return nil, err
	}
	j.logger.Info("journal run started",
		slog.String("run_id", meta.ID),
		slog.String("environment", meta.Environment),
		slog.String("config_fingerprint", fp),
	)
	return &Run{j: j, id: id, meta: meta}, nil
}

// Runs returns every run, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]RunMeta, error) {
	var runs []RunMeta
	err := j.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var meta RunMeta
			if err := it.Item().Value(func(val []byte) error {
				return decodeEntry(val, &meta)
			}); err != nil {
				return fmt.Errorf("run %x: %w", it.Item().Key()[len(prefix):], err)
			}
			runs = append(runs, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(runs, func(a, b RunMeta) int { return a.StartedAt.Compare(b.StartedAt) })
	return runs, nil
}

// Run returns one run's metadata. id may be a prefix of the full ID as
// long as it is unambiguous.
func (j *Journal) Run(ctx context.Context, id string) (RunMeta, error) {
	uid, err := j.resolve(ctx, id)
	if err != nil {
		return RunMeta{}, err
	}
	return j.getMeta(ctx, uid)
}

// Cycles calls fn for every recorded cycle of run id with Cycle >= from,
// in order. fn returning an error stops the replay and returns it.
func (j *Journal) Cycles(ctx context.Context, id string, from int, fn func(agent.CycleRecord) error) error {
	uid, err := j.resolve(ctx, id)
	if err != nil {
		return err
	}
	if _, err := j.getMeta(ctx, uid); err != nil {
		return err
	}
	prefix := cycleKey(uid, 0)[:len(cyclePrefix)+16]
	start := cycleKey(uid, max(from, 0))
	return j.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec agent.CycleRecord
			if err := it.Item().Value(func(val []byte) error {
				return decodeEntry(val, &rec)
			}); err != nil {
				cycle := binary.BigEndian.Uint64(it.Item().Key()[len(prefix):])
				return fmt.Errorf("cycle %d: %w", cycle, err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// resolve maps a full or unambiguous prefix ID to a run.
func (j *Journal) resolve(ctx context.Context, id string) (uuid.UUID, error) {
	if uid, err := uuid.Parse(id); err == nil {
		return uid, nil
	}
	if id == "" {
		return uuid.UUID{}, ErrInvalidRunID
	}
	runs, err := j.Runs(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	var match []string
	for _, r := range runs {
		if len(r.ID) >= len(id) && r.ID[:len(id)] == id {
			match = append(match, r.ID)
		}
	}
	switch len(match) {
	case 0:
		return uuid.UUID{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return uuid.MustParse(match[0]), nil
	default:
		return uuid.UUID{}, fmt.Errorf("%w: %q matches %d runs", ErrInvalidRunID, id, len(match))
	}
}

func (j *Journal) getMeta(ctx context.Context, id uuid.UUID) (RunMeta, error) {
	var meta RunMeta
	err := j.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return decodeEntry(val, &meta) })
	})
	return meta, err
}

func (j *Journal) putMeta(ctx context.Context, id uuid.UUID, meta RunMeta) error {
	val, err := encodeEntry(meta)
	if err != nil {
		return err
	}
	return j.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(runKey(id), val)
	})
}

func runKey(id uuid.UUID) []byte {
	return append([]byte(runPrefix), id[:]...)
}

func cycleKey(id uuid.UUID, cycle int) []byte {
	key := make([]byte, 0, len(cyclePrefix)+16+8)
	key = append(key, cyclePrefix...)
	key = append(key, id[:]...)
	return binary.BigEndian.AppendUint64(key, uint64(cycle))
}

// Run records cycles for one run. It implements agent.Recorder.
type Run struct {
	j  *Journal
	id uuid.UUID

	mu       sync.Mutex
	meta     RunMeta
	finished bool
}

var _ agent.Recorder = (*Run)(nil)

// ID returns the run's ID.
func (r *Run) ID() string { return r.id.String() }

// Record stores one cycle. Cycles must be recorded in increasing order.
func (r *Run) Record(ctx context.Context, rec agent.CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return ErrRunFinished
	}
	if rec.Cycle <= 0 || (r.meta.Cycles > 0 && rec.Cycle <= r.meta.Cycles) {
		return fmt.Errorf("%w: cycle %d after %d", ErrOutOfOrder, rec.Cycle, r.meta.Cycles)
	}
	val, err := encodeEntry(rec)
	if err != nil {
		return err
	}
	meta := r.meta
	meta.Cycles = rec.Cycle
	meta.TotalReward = rec.TotalReward
	metaVal, err := encodeEntry(meta)
	if err != nil {
		return err
	}
	// The cycle and the run's running totals commit together.
	if err := r.j.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(cycleKey(r.id, rec.Cycle), val); err != nil {
			return err
		}
		return txn.Set(runKey(r.id), metaVal)
	}); err != nil {
		return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
	}
	r.meta = meta
	return nil
}

// Finish stamps the run with its outcome. Further Records fail.
func (r *Run) Finish(ctx context.Context, sum agent.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return ErrRunFinished
	}
	r.meta.FinishedAt = r.j.now().UTC()
	r.meta.StopReason = sum.StopReason
	r.meta.TotalReward = sum.TotalReward
	if err := r.j.putMeta(ctx, r.id, r.meta); err != nil {
		return err
	}
	r.finished = true
	r.j.logger.Info("journal run finished",
		slog.String("run_id", r.meta.ID),
		slog.Int("cycles", r.meta.Cycles),
		slog.String("reason", sum.StopReason),
	)
	return nil
}
