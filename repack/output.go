// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package repack

import (
	"sync"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/migration"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

// outputSignal is the destination signal table: an append-only,
// mutex-serialized sequence of record batches (spec.md §4.10's
// "signal_table_writer_mutex").
type outputSignal struct {
	mu        sync.Mutex
	w         *table.Writer
	sb        builder.SignalBuilder
	vbz       bool
	batchSize int
	pending   int
	nextRow   uint64
}

func newOutputSignal(opts Options, alloc memory.Allocator) (*outputSignal, error) {
	meta := table.BuildMetadata(opts.FileIdentifier, opts.Software, schema.CurrentPod5Version)
	fields := schema.SignalTable(opts.VBZ).ArrowFields(0)
	w, err := table.NewWriter(fields, meta, alloc)
	if err != nil {
		return nil, err
	}
	return &outputSignal{
		w:         w,
		sb:        builder.NewSignalBuilder(opts.VBZ, alloc),
		vbz:       opts.VBZ,
		batchSize: opts.SignalBatchSize,
	}, nil
}

func (o *outputSignal) flushLocked() error {
	if o.pending == 0 {
		return nil
	}
	tb := o.sb.Finish()
	rec := tb.NewRecord()
	defer rec.Release()
	o.pending = 0
	return o.w.WriteRecord(rec)
}

func (o *outputSignal) appendPreCompressed(readID uuid.Uuid, blob []byte, n uint32) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.sb.AppendPreCompressed(readID, blob, n); err != nil {
		return 0, err
	}
	return o.recordAppendLocked()
}

func (o *outputSignal) appendUncompressed(readID uuid.Uuid, samples []int16) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.sb.AppendUncompressed(readID, samples); err != nil {
		return 0, err
	}
	return o.recordAppendLocked()
}

func (o *outputSignal) recordAppendLocked() (uint64, error) {
	id := o.nextRow
	o.nextRow++
	o.pending++
	if o.pending >= o.batchSize {
		if err := o.flushLocked(); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (o *outputSignal) close() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flushLocked(); err != nil {
		return nil, err
	}
	return o.w.Close()
}

func (o *outputSignal) release() { o.sb.Release() }

// outputReads is the destination read table: a mutex-serialized
// sequence of record batches (spec.md §4.10's "read_table_writer_mutex"),
// written only after every signal row a read references has already
// been assigned a destination row id.
type outputReads struct {
	mu        sync.Mutex
	w         *table.Writer
	tb        *builder.TableBuilder
	batchSize int
	pending   int
	rows      int
}

func newOutputReads(opts Options, alloc memory.Allocator) (*outputReads, error) {
	meta := table.BuildMetadata(opts.FileIdentifier, opts.Software, schema.CurrentPod5Version)
	fields := schema.ReadTable.ArrowFields(schema.ReadTableV4)
	w, err := table.NewWriter(fields, meta, alloc)
	if err != nil {
		return nil, err
	}
	return &outputReads{
		w:         w,
		tb:        builder.New(schema.ReadTable, schema.ReadTableV4, alloc),
		batchSize: opts.ReadBatchSize,
	}, nil
}

func (o *outputReads) append(row migration.Row) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := migration.EncodeRow(o.tb, row); err != nil {
		return err
	}
	o.rows++
	o.pending++
	if o.pending >= o.batchSize {
		return o.flushLocked()
	}
	return nil
}

func (o *outputReads) flushLocked() error {
	if o.pending == 0 {
		return nil
	}
	rec := o.tb.NewRecord()
	defer rec.Release()
	o.pending = 0
	return o.w.WriteRecord(rec)
}

func (o *outputReads) close() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flushLocked(); err != nil {
		return nil, err
	}
	return o.w.Close()
}

func (o *outputReads) release() { o.tb.Release() }

// outputRunInfo merges and deduplicates run_info rows across inputs,
// keyed by acquisition_id (spec.md §4.10).
type outputRunInfo struct {
	mu   sync.Mutex
	w    *table.Writer
	tb   *builder.TableBuilder
	seen map[string]bool
	rows int
}

func newOutputRunInfo(opts Options, alloc memory.Allocator) (*outputRunInfo, error) {
	meta := table.BuildMetadata(opts.FileIdentifier, opts.Software, schema.CurrentPod5Version)
	fields := schema.RunInfoTable.ArrowFields(0)
	w, err := table.NewWriter(fields, meta, alloc)
	if err != nil {
		return nil, err
	}
	return &outputRunInfo{
		w:    w,
		tb:   builder.New(schema.RunInfoTable, 0, alloc),
		seen: make(map[string]bool),
	}, nil
}

func (o *outputRunInfo) add(r runInfoRow) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[r.AcquisitionID] {
		return nil
	}
	if err := appendRunInfoRow(o.tb, r); err != nil {
		return err
	}
	o.seen[r.AcquisitionID] = true
	o.rows++
	return nil
}

func (o *outputRunInfo) close() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec := o.tb.NewRecord()
	defer rec.Release()
	if rec.NumRows() > 0 {
		if err := o.w.WriteRecord(rec); err != nil {
			return nil, err
		}
	}
	return o.w.Close()
}

func (o *outputRunInfo) release() { o.tb.Release() }

// output bundles the three destination tables plus the duplicate-read
// tracker for one repack run.
type output struct {
	signal  *outputSignal
	reads   *outputReads
	runInfo *outputRunInfo

	dupMu sync.Mutex
	seen  map[uuid.Uuid]bool
}

func newOutput(opts Options, alloc memory.Allocator) (*output, error) {
	sig, err := newOutputSignal(opts, alloc)
	if err != nil {
		return nil, err
	}
	reads, err := newOutputReads(opts, alloc)
	if err != nil {
		return nil, err
	}
	runInfo, err := newOutputRunInfo(opts, alloc)
	if err != nil {
		return nil, err
	}
	return &output{
		signal:  sig,
		reads:   reads,
		runInfo: runInfo,
		seen:    make(map[uuid.Uuid]bool),
	}, nil
}

func (o *output) addRunInfo(r runInfoRow) error { return o.runInfo.add(r) }

func (o *output) checkDuplicate(id uuid.Uuid) error {
	o.dupMu.Lock()
	defer o.dupMu.Unlock()
	if o.seen[id] {
		return errs.Errorf(errs.Invalid, op, "Duplicate read id %s", id)
	}
	o.seen[id] = true
	return nil
}

// copyInput streams every selected read of in into o, renumbering its
// signal rows against o.signal and recording its read id against o's
// duplicate tracker when dupCheck is set.
func (o *output) copyInput(in *Input, dupCheck bool) error {
	src, err := newSignalSource(in.Signal)
	if err != nil {
		return err
	}
	defer src.release()

	var wanted map[int]bool
	if in.Rows != nil {
		wanted = make(map[int]bool, len(in.Rows))
		for _, r := range in.Rows {
			wanted[r] = true
		}
	}

	global := 0
	for b := 0; b < in.Reads.NumRecords(); b++ {
		rec, err := in.Reads.Record(b)
		if err != nil {
			return err
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			idx := global
			global++
			if wanted != nil && !wanted[idx] {
				continue
			}
			row, err := migration.DecodeRow(in.SourceVersion, rec, r)
			if err != nil {
				rec.Release()
				return err
			}
			if dupCheck {
				if err := o.checkDuplicate(row.ReadID); err != nil {
					rec.Release()
					return err
				}
			}
			destIDs, err := copySignalRows(o.signal, src, row.SignalRows)
			if err != nil {
				rec.Release()
				return err
			}
			row.SignalRows = destIDs
			if err := o.reads.append(row); err != nil {
				rec.Release()
				return err
			}
		}
		rec.Release()
	}
	return nil
}

func (o *output) finish(opts Options) (*Result, error) {
	sigBytes, err := o.signal.close()
	if err != nil {
		return nil, err
	}
	readsBytes, err := o.reads.close()
	if err != nil {
		return nil, err
	}
	runInfoBytes, err := o.runInfo.close()
	if err != nil {
		return nil, err
	}
	return &Result{
		ReadsWritten: o.reads.rows,
		SignalRows:   int(o.signal.nextRow),
		RunInfoRows:  o.runInfo.rows,
		ReadTable:    readsBytes,
		SignalTable:  sigBytes,
		RunInfoTable: runInfoBytes,
	}, nil
}

func (o *output) release() {
	o.signal.release()
	o.reads.release()
	o.runInfo.release()
}
