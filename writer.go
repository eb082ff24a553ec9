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

package pod5

import (
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/alignedio"
	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/container"
	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/migration"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

// defaultMaxSignalChunkSize bounds how many samples a single signal-
// table row carries when AddRead is given a read's whole sample array,
// matching spec.md §4.6's "signal is split into chunks" even when the
// caller doesn't pre-chunk it.
const defaultMaxSignalChunkSize = 1 << 20

// defaultSoftware stamps files this package writes when the caller
// doesn't supply one.
const defaultSoftware = "github.com/nanoporetech/pod5"

// WriterOptions configures Create.
type WriterOptions struct {
	// Software is recorded in the container footer and every embedded
	// table's metadata (spec.md §6); defaults to defaultSoftware.
	Software string
	// VBZ selects the signal table's compression (spec.md §4.6).
	VBZ bool
	// Direct and Sync select alignedio.OpenFileSink's O_DIRECT/O_SYNC
	// flags (spec.md §4.9); both default to false.
	Direct bool
	Sync   bool
	// MaxSignalChunkSize bounds how many samples AddRead puts in a
	// single signal-table row before starting a new one.
	MaxSignalChunkSize int
	// SignalTableBatchSize and ReadTableBatchSize bound how many rows
	// accumulate in each table before a record batch is flushed.
	SignalTableBatchSize int
	ReadTableBatchSize    int
}

// Writer creates a new pod5 file (spec.md §3/§4.4's file-writer
// lifecycle): AddRunInfo/AddRead accumulate rows in the signal and read
// tables, flushing a record batch whenever either table's configured
// batch size is reached, and Close embeds all three tables into the
// container envelope in the spec-mandated signal/run-info/reads order.
//
// The writer's underlying sink is package alignedio's aligned/direct
// output stream: container.Writer is handed an *alignedio.Stream, never
// a plain *os.File, so every file this type writes exercises the same
// chunked, backpressure-bounded write path spec.md §4.9 describes.
type Writer struct {
	opts           WriterOptions
	alloc          memory.Allocator
	fileIdentifier string

	sink   *alignedio.FileSink
	stream *alignedio.Stream
	cw     *container.Writer

	sig           *table.Writer
	sigBuild      builder.SignalBuilder
	sigPending    int
	nextSignalRow uint64

	readsW       *table.Writer
	readsTB      *builder.TableBuilder
	readsPending int
	readsCount   int

	runInfoRows []RunInfo
	runInfoSeen map[string]bool

	closed bool
}

// Create opens path for writing and returns a Writer ready to accept
// AddRunInfo/AddRead calls.
func Create(path string, opts WriterOptions) (*Writer, error) {
	if opts.Software == "" {
		opts.Software = defaultSoftware
	}
	if opts.MaxSignalChunkSize <= 0 {
		opts.MaxSignalChunkSize = defaultMaxSignalChunkSize
	}
	if opts.SignalTableBatchSize <= 0 {
		opts.SignalTableBatchSize = 4096
	}
	if opts.ReadTableBatchSize <= 0 {
		opts.ReadTableBatchSize = 4096
	}

	id, err := uuid.New()
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}

	sink, err := alignedio.OpenFileSink(path, opts.Direct, opts.Sync)
	if err != nil {
		return nil, err
	}
	stream := alignedio.New(sink, 0, opts.Direct)

	cw, err := container.NewWriter(stream, id.String(), opts.Software, schema.CurrentPod5Version)
	if err != nil {
		stream.Close()
		sink.Close()
		return nil, err
	}

	alloc := memory.NewGoAllocator()
	meta := table.BuildMetadata(id.String(), opts.Software, schema.CurrentPod5Version)

	sigFields := schema.SignalTable(opts.VBZ).ArrowFields(0)
	sigW, err := table.NewWriter(sigFields, meta, alloc)
	if err != nil {
		stream.Close()
		sink.Close()
		return nil, err
	}

	readFields := schema.ReadTable.ArrowFields(schema.ReadTableV4)
	readsW, err := table.NewWriter(readFields, meta, alloc)
	if err != nil {
		stream.Close()
		sink.Close()
		return nil, err
	}

	return &Writer{
		opts:           opts,
		alloc:          alloc,
		fileIdentifier: id.String(),
		sink:           sink,
		stream:         stream,
		cw:             cw,
		sig:            sigW,
		sigBuild:       builder.NewSignalBuilder(opts.VBZ, alloc),
		readsW:         readsW,
		readsTB:        builder.New(schema.ReadTable, schema.ReadTableV4, alloc),
		runInfoSeen:    make(map[string]bool),
	}, nil
}

// AddRunInfo registers a run-info row, deduplicated by AcquisitionID —
// the same dedup rule package repack applies when merging run_info
// across inputs (spec.md §4.10), applied here at write time instead.
func (w *Writer) AddRunInfo(info RunInfo) error {
	if w.closed {
		return errs.Errorf(errs.Invalid, op, "AddRunInfo called after Close")
	}
	if w.runInfoSeen[info.AcquisitionID] {
		return nil
	}
	w.runInfoSeen[info.AcquisitionID] = true
	w.runInfoRows = append(w.runInfoRows, info)
	return nil
}

// ReadInput is one read's caller-supplied fields for AddRead. Fields
// left at their zero value are stored as that zero value (numeric
// fields do not take migration.DefaultRowV0's NaN defaults), except
// ReadID, for which AddRead generates a fresh id, and
// PoreType/EndReason/RunInfo, which fall back to their declared string
// sentinels rather than an empty string.
type ReadInput struct {
	ReadID  uuid.Uuid // zero value: AddRead generates a fresh id
	Samples []int16

	ReadNumber   uint32
	StartSample  uint64
	MedianBefore float32

	PoreChannel uint16
	PoreWell    uint8
	PoreType    string

	CalibrationOffset float32
	CalibrationScale  float32

	EndReason string
	RunInfo   string // acquisition_id of the owning run-info row

	NumMinknowEvents       uint64
	TrackedScalingScale    float32
	TrackedScalingShift    float32
	PredictedScalingScale  float32
	PredictedScalingShift  float32
	NumReadsSinceMuxChange uint32
	TimeSinceMuxChange     float32

	OpenPoreLevel float32
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// AddRead appends in's signal samples to the signal table (split into
// MaxSignalChunkSize-sized rows) and its read-table row, flushing
// either table's pending record batch once it reaches the configured
// batch size. It returns the read id actually stored: in.ReadID if
// non-nil, otherwise a freshly generated one.
func (w *Writer) AddRead(in ReadInput) (uuid.Uuid, error) {
	if w.closed {
		return uuid.Nil, errs.Errorf(errs.Invalid, op, "AddRead called after Close")
	}
	id := in.ReadID
	if id.IsNil() {
		var err error
		id, err = uuid.New()
		if err != nil {
			return uuid.Nil, errs.New(errs.IOError, op, err)
		}
	}

	var rowIDs []uint64
	var numSamples uint64
	chunk := w.opts.MaxSignalChunkSize
	for off := 0; off < len(in.Samples); off += chunk {
		end := off + chunk
		if end > len(in.Samples) {
			end = len(in.Samples)
		}
		part := in.Samples[off:end]
		if err := w.sigBuild.AppendUncompressed(id, part); err != nil {
			return uuid.Nil, err
		}
		rowIDs = append(rowIDs, w.nextSignalRow)
		w.nextSignalRow++
		numSamples += uint64(len(part))
		w.sigPending++
		if w.sigPending >= w.opts.SignalTableBatchSize {
			if err := w.flushSignal(); err != nil {
				return uuid.Nil, err
			}
		}
	}

	row := migration.Row{
		ReadID:                 id,
		SignalRows:             rowIDs,
		ReadNumber:             in.ReadNumber,
		StartSample:            in.StartSample,
		MedianBefore:           in.MedianBefore,
		PoreChannel:            in.PoreChannel,
		PoreWell:               in.PoreWell,
		PoreType:               orDefault(in.PoreType, "not found"),
		CalibrationOffset:      in.CalibrationOffset,
		CalibrationScale:       in.CalibrationScale,
		EndReason:              orDefault(in.EndReason, schema.EndReasonUnknown),
		RunInfo:                orDefault(in.RunInfo, "not found"),
		NumMinknowEvents:       in.NumMinknowEvents,
		TrackedScalingScale:    in.TrackedScalingScale,
		TrackedScalingShift:    in.TrackedScalingShift,
		PredictedScalingScale:  in.PredictedScalingScale,
		PredictedScalingShift:  in.PredictedScalingShift,
		NumReadsSinceMuxChange: in.NumReadsSinceMuxChange,
		TimeSinceMuxChange:     in.TimeSinceMuxChange,
		NumSamples:             numSamples,
		OpenPoreLevel:          in.OpenPoreLevel,
	}
	if err := migration.EncodeRow(w.readsTB, row); err != nil {
		return uuid.Nil, err
	}
	w.readsPending++
	w.readsCount++
	if w.readsPending >= w.opts.ReadTableBatchSize {
		if err := w.flushReads(); err != nil {
			return uuid.Nil, err
		}
	}
	return id, nil
}

func (w *Writer) flushSignal() error {
	if w.sigPending == 0 {
		return nil
	}
	tb := w.sigBuild.Finish()
	rec := tb.NewRecord()
	defer rec.Release()
	w.sigPending = 0
	if rec.NumRows() == 0 {
		return nil
	}
	return w.sig.WriteRecord(rec)
}

func (w *Writer) flushReads() error {
	if w.readsPending == 0 {
		return nil
	}
	rec := w.readsTB.NewRecord()
	defer rec.Release()
	w.readsPending = 0
	if rec.NumRows() == 0 {
		return nil
	}
	return w.readsW.WriteRecord(rec)
}

// Close flushes every pending batch, embeds the three tables into the
// container envelope in the signal/run-info/reads order spec.md §4.4
// requires, and finalizes the underlying aligned/direct stream and
// file. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushSignal(); err != nil {
		return w.abort(err)
	}
	sigBytes, err := w.sig.Close()
	if err != nil {
		return w.abort(err)
	}
	w.sigBuild.Release()
	if err := w.cw.WriteSection(container.ContentSignalTable, sigBytes); err != nil {
		return w.abort(err)
	}

	runInfoBytes, err := w.closeRunInfo()
	if err != nil {
		return w.abort(err)
	}
	if err := w.cw.WriteSection(container.ContentRunInfoTable, runInfoBytes); err != nil {
		return w.abort(err)
	}

	if err := w.flushReads(); err != nil {
		return w.abort(err)
	}
	readsBytes, err := w.readsW.Close()
	if err != nil {
		return w.abort(err)
	}
	w.readsTB.Release()
	if err := w.cw.WriteSection(container.ContentReadsTable, readsBytes); err != nil {
		return w.abort(err)
	}

	if err := w.cw.Close(); err != nil {
		return w.abort(err)
	}
	if err := w.stream.Close(); err != nil {
		w.sink.Close()
		return err
	}
	return w.sink.Close()
}

func (w *Writer) abort(err error) error {
	w.stream.Close()
	w.sink.Close()
	return err
}

func (w *Writer) closeRunInfo() ([]byte, error) {
	meta := table.BuildMetadata(w.fileIdentifier, w.opts.Software, schema.CurrentPod5Version)
	fields := schema.RunInfoTable.ArrowFields(0)
	tw, err := table.NewWriter(fields, meta, w.alloc)
	if err != nil {
		return nil, err
	}
	tb := builder.New(schema.RunInfoTable, 0, w.alloc)
	defer tb.Release()
	for _, info := range w.runInfoRows {
		if err := appendRunInfo(tb, info); err != nil {
			return nil, err
		}
	}
	rec := tb.NewRecord()
	defer rec.Release()
	if rec.NumRows() > 0 {
		if err := tw.WriteRecord(rec); err != nil {
			return nil, err
		}
	}
	return tw.Close()
}
