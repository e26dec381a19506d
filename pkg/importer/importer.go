package importer

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/treeport/pkg/colstore"
	"github.com/ajitpratap0/treeport/pkg/config"
	"github.com/ajitpratap0/treeport/pkg/logger"
	"github.com/ajitpratap0/treeport/pkg/metrics"
	"github.com/ajitpratap0/treeport/pkg/rowstore"
	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// Importer converts one row-oriented source dataset into a columnar object,
// record by record. It is single-threaded; one Importer must not be shared
// across goroutines.
type Importer struct {
	source rowstore.Reader
	store  *colstore.Store
	name   string
	cfg    config.ImportConfig
	log    *zap.Logger
	out    io.Writer

	progress ProgressCallback

	branches    []*importBranch
	fields      []*importField
	collections []*leafCountCollection
	collByLeaf  map[string]*leafCountCollection
	transforms  []boundTransform
	model       *colstore.Model
	entry       *colstore.Entry
}

// New creates an importer for an already-open source. The destination
// object takes the source dataset's name.
func New(source rowstore.Reader, store *colstore.Store, cfg config.ImportConfig) (*Importer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source.Name() == "" {
		return nil, treeporterrors.New(treeporterrors.ErrorTypeValidation,
			"source dataset has no name")
	}
	return &Importer{
		source:     source,
		store:      store,
		name:       source.Name(),
		cfg:        cfg,
		log:        logger.Get().With(zap.String("dataset", source.Name())),
		out:        os.Stdout,
		collByLeaf: make(map[string]*leafCountCollection),
		model:      colstore.NewBareModel(),
	}, nil
}

// Open loads a source dataset from a JSON file and creates an importer
// writing into destDir.
func Open(sourcePath, destDir string, cfg config.ImportConfig) (*Importer, error) {
	source, err := rowstore.LoadJSON(sourcePath)
	if err != nil {
		return nil, err
	}
	store, err := colstore.OpenStore(destDir)
	if err != nil {
		return nil, err
	}
	return New(source, store, cfg)
}

// SetProgressCallback replaces the default progress reporting. Passing nil
// restores the default; use config.ImportConfig.Quiet to disable reporting.
func (im *Importer) SetProgressCallback(cb ProgressCallback) { im.progress = cb }

// SetOutput redirects schema and progress reporting, which defaults to
// standard output.
func (im *Importer) SetOutput(w io.Writer) { im.out = w }

// Name returns the destination object name.
func (im *Importer) Name() string { return im.name }

// Model returns the destination model; bare until PrepareSchema has run.
func (im *Importer) Model() *colstore.Model { return im.model }

// Import runs the whole conversion: schema preparation, the per-record
// loop, and publication of the destination object. Any error aborts the
// import and leaves the store without the destination object.
func (im *Importer) Import(ctx context.Context) error {
	start := time.Now()

	if im.store.Exists(im.name) {
		return treeporterrors.Newf(treeporterrors.ErrorTypeConflict,
			"object %q already exists in destination", im.name)
	}

	if err := im.PrepareSchema(); err != nil {
		metrics.ImportsTotal.WithLabelValues(metrics.StatusFailure).Inc()
		return err
	}

	opts := colstore.WriterOptions{
		Compressed: im.cfg.Compression == config.CompressionZstd,
		BatchSize:  im.cfg.BatchSize,
	}
	w, err := im.store.NewWriter(im.name, im.model, opts)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(metrics.StatusFailure).Inc()
		return err
	}
	committed := false
	defer func() {
		if !committed {
			w.Abort()
		}
	}()

	progress := im.progress
	if progress == nil && !im.cfg.Quiet {
		progress = newDefaultProgressCallback(im.cfg.ProgressIntervalBytes, im.out)
	}

	nRecords := im.source.NumRecords()
	if im.cfg.MaxRecords >= 0 && im.cfg.MaxRecords < nRecords {
		nRecords = im.cfg.MaxRecords
	}

	im.log.Info("starting import",
		zap.Int64("records", nRecords),
		zap.Int("fields", len(im.fields)),
		zap.Int("collections", len(im.collections)),
		zap.String("compression", im.cfg.Compression))

	for i := int64(0); i < nRecords; i++ {
		if err := ctx.Err(); err != nil {
			metrics.ImportsTotal.WithLabelValues(metrics.StatusFailure).Inc()
			return treeporterrors.Wrap(err, treeporterrors.ErrorTypeInternal,
				"import canceled")
		}
		if err := im.importRecord(i); err != nil {
			metrics.ImportsTotal.WithLabelValues(metrics.StatusFailure).Inc()
			return err
		}
		if err := w.Fill(im.entry); err != nil {
			metrics.ImportsTotal.WithLabelValues(metrics.StatusFailure).Inc()
			return err
		}
		metrics.RecordsImported.Inc()
		if progress != nil {
			progress.Call(w.BytesWritten(), i+1)
		}
	}

	if err := w.Commit(); err != nil {
		metrics.ImportsTotal.WithLabelValues(metrics.StatusFailure).Inc()
		return err
	}
	committed = true

	if progress != nil {
		progress.Finish(w.BytesWritten(), nRecords)
	}

	metrics.ImportsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	metrics.BytesWritten.Add(float64(w.BytesWritten()))
	metrics.ImportDuration.Observe(time.Since(start).Seconds())

	im.log.Info("import complete",
		zap.Int64("records", nRecords),
		zap.Int64("bytes_written", w.BytesWritten()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// importRecord reads source record i, applies transformations, and submits
// the record to the destination. Collections are filled element by element
// before the top-level record is submitted.
func (im *Importer) importRecord(i int64) error {
	if err := im.source.Read(i); err != nil {
		return treeporterrors.Wrapf(err, treeporterrors.ErrorTypeFile,
			"cannot read record %d", i)
	}

	for _, c := range im.collections {
		count := int(int32(binary.LittleEndian.Uint32(c.countBuf)))
		if count < 0 || count > c.maxLength {
			return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d: count leaf %q value %d outside [0, %d]",
				i, c.countLeaf, count, c.maxLength)
		}
		for elem := 0; elem < count; elem++ {
			rc := recordContext{element: elem}
			for _, t := range c.transforms {
				if err := t.op.transform(im.branches[t.branch], im.fields[t.field], &rc); err != nil {
					metrics.TransformFailures.Inc()
					return treeporterrors.Wrapf(err, treeporterrors.ErrorTypeData,
						"record %d: transformation failed for %q", i, im.fields[t.field].field.Name())
				}
			}
			if err := c.handle.Fill(c.entry); err != nil {
				return err
			}
		}
	}

	rc := recordContext{}
	for _, t := range im.transforms {
		if err := t.op.transform(im.branches[t.branch], im.fields[t.field], &rc); err != nil {
			metrics.TransformFailures.Inc()
			return treeporterrors.Wrapf(err, treeporterrors.ErrorTypeData,
				"record %d: transformation failed for %q", i, im.fields[t.field].field.Name())
		}
	}

	return nil
}
