package mailindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/mailidx/internal/logger"
	"github.com/marmos91/mailidx/internal/telemetry"
	"github.com/marmos91/mailidx/pkg/mailindex/dirlock"
	"github.com/marmos91/mailidx/pkg/metrics"
)

// maxNextUID mirrors the source's INT_MAX guard: once next_uid
// approaches the top of the signed 32-bit range, open_init requests a
// rebuild rather than risk wraparound.
const maxNextUID uint32 = 1<<31 - 1 - 1024

// Collaborators bundles the factory functions used to open or create the
// data file, hash store, and modify log collaborators for an index. Index
// never constructs a concrete collaborator itself; callers supply these so
// pkg/mailindex stays independent of any one collaborator implementation.
type Collaborators struct {
	OpenData      func(dir, prefix string) (DataStore, error)
	OpenHash      func(dir, prefix string) (HashStore, error)
	OpenModifyLog func(dir, prefix string) (ModifyLog, error)
}

// Options configures Open/Create/OpenOrCreate.
type Options struct {
	Dir            string
	Prefix         string // defaults to "dovecot.index"
	UpdateRecent   bool
	Backend        Backend // defaults to NullBackend{}
	Collaborators  Collaborators
	MetricsEnabled bool
}

func (o *Options) setDefaults() {
	if o.Prefix == "" {
		o.Prefix = "dovecot.index"
	}
	if o.Backend == nil {
		o.Backend = NullBackend{}
	}
}

// Open implements the open/recovery pipeline: find_index, open_file,
// and the recovery driver. It fails if no compatible index file exists
// in opts.Dir; use OpenOrCreate to fall through to create() instead.
func Open(ctx context.Context, opts Options) (*Index, error) {
	opts.setDefaults()

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanOpen, filepath.Join(opts.Dir, opts.Prefix), 0)
	defer span.End()

	name, err := findIndex(opts.Dir, opts.Prefix)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	return openFile(ctx, opts, name)
}

// findIndex probes <dir>/<prefix> first, then scans the directory for any
// sibling entry starting with <prefix> whose header passes compatibility
// verification.
func findIndex(dir, prefix string) (string, error) {
	primary := filepath.Join(dir, prefix)
	if verifyHeaderFile(primary) {
		return primary, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("mailindex: read directory %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		candidate := filepath.Join(dir, e.Name())
		if verifyHeaderFile(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("mailindex: %w: no compatible index found under prefix %q", ErrIncompatibleFormat, prefix)
}

// verifyHeaderFile opens path read-only just long enough to check its
// compat tuple and version, per read_and_verify_header.
func verifyHeaderFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return false
	}

	return decodeHeader(buf).compatible()
}

// openFile opens name read/write, re-verifies its header, opens the
// collaborators, and runs the recovery driver.
func openFile(ctx context.Context, opts Options, name string) (*Index, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("mailindex: open %s: %w", name, err)
	}

	region := newMmapRegion(f)
	if err := region.refresh(); err != nil {
		f.Close()
		return nil, err
	}

	h := region.header()
	if !h.compatible() {
		region.unmap()
		f.Close()
		return nil, ErrIncompatibleFormat
	}

	idx := &Index{
		dir:          opts.Dir,
		prefix:       filepath.Base(name),
		region:       region,
		lock:         newLockManager(f),
		savedIndexID: h.IndexID,
		backend:      opts.Backend,
	}

	if opts.MetricsEnabled {
		idx.metrics = metrics.NewIndexMetrics()
	}

	if err := idx.openCollaborators(opts.Collaborators); err != nil {
		region.unmap()
		f.Close()
		return nil, err
	}

	if err := idx.SetLock(ctx, Exclusive); err != nil {
		idx.Close()
		return nil, err
	}

	if err := idx.runRecoveryDriver(ctx); err != nil {
		idx.Close()
		return nil, err
	}

	if err := idx.backend.Sync(ctx, idx); err != nil {
		idx.Close()
		return nil, fmt.Errorf("mailindex: backend sync: %w", err)
	}

	if err := idx.openInit(ctx, opts.UpdateRecent); err != nil {
		idx.Close()
		return nil, err
	}

	if err := idx.SetLock(ctx, Unlocked); err != nil {
		idx.Close()
		return nil, err
	}

	logger.Info("index opened", logger.Mailbox(idx.mailboxPath()), logger.IndexID(idx.savedIndexID))

	return idx, nil
}

func (idx *Index) openCollaborators(c Collaborators) error {
	if c.OpenData != nil {
		d, err := c.OpenData(idx.dir, idx.prefix)
		if err != nil {
			return fmt.Errorf("mailindex: open data file: %w", err)
		}
		idx.data = d
	}
	if c.OpenHash != nil {
		h, err := c.OpenHash(idx.dir, idx.prefix)
		if err != nil {
			return fmt.Errorf("mailindex: open hash file: %w", err)
		}
		idx.hash = h
	}
	if c.OpenModifyLog != nil {
		m, err := c.OpenModifyLog(idx.dir, idx.prefix)
		if err != nil {
			return fmt.Errorf("mailindex: open modify log: %w", err)
		}
		idx.modifyLog = m
	}
	return nil
}

// openInit implements step 10 of the recovery driver: recent-message
// bookkeeping and the next_uid wraparound guard. Requires EXCLUSIVE if it
// needs to write last_nonrecent_uid; callers that already hold EXCLUSIVE
// (open_file, create) pass it straight through.
func (idx *Index) openInit(ctx context.Context, updateRecent bool) error {
	h := idx.region.header()

	if updateRecent && h.LastNonrecentUID != h.NextUID-1 {
		h.LastNonrecentUID = h.NextUID - 1
		idx.region.writeHeader(h)
	}

	if h.NextUID >= maxNextUID {
		h.Flags |= FlagRebuild
		idx.region.writeHeader(h)
	}

	return nil
}

// newIndexID folds the creation-time wall clock seconds with a
// UUID-derived value into the 32-bit indexid space, avoiding collisions
// across rapid rebuild cycles on the same host.
func newIndexID() uint32 {
	id := uuid.New()
	seed := uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
	return uint32(time.Now().Unix()) ^ seed
}

// Create writes a brand-new index file under opts.Dir, falling back to a
// <prefix>-<hostname> name if another process just won the race to create
// the primary name.
func Create(ctx context.Context, opts Options) (*Index, error) {
	opts.setDefaults()

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanCreate, filepath.Join(opts.Dir, opts.Prefix), 0)
	defer span.End()

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("mailindex: create directory %s: %w", opts.Dir, err)
	}

	indexID := newIndexID()
	uidValidity := uint32(time.Now().Unix())
	h := newHeader(uidValidity, indexID)

	name, err := createIndexFile(opts.Dir, opts.Prefix, h)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	idx, err := openFileForCreate(ctx, opts, name)
	if err != nil {
		return nil, err
	}

	if err := idx.SetLock(ctx, Exclusive); err != nil {
		idx.Close()
		return nil, err
	}

	if err := idx.openCollaborators(opts.Collaborators); err != nil {
		idx.Close()
		return nil, err
	}

	if err := idx.backend.Rebuild(ctx, idx); err != nil {
		idx.Close()
		return nil, fmt.Errorf("mailindex: backend rebuild: %w", err)
	}

	if err := idx.openInit(ctx, opts.UpdateRecent); err != nil {
		idx.Close()
		return nil, err
	}

	if err := idx.SetLock(ctx, Unlocked); err != nil {
		idx.Close()
		return nil, err
	}

	logger.Info("index created", logger.Mailbox(idx.mailboxPath()), logger.IndexID(idx.savedIndexID))

	return idx, nil
}

// createIndexFile writes h to a temp file and links it into place,
// falling back to a hostname-suffixed name on EEXIST.
func createIndexFile(dir, prefix string, h Header) (string, error) {
	dl, err := dirlock.AcquireExclusive(dir)
	if err != nil {
		return "", fmt.Errorf("mailindex: acquire directory lock: %w", err)
	}
	defer dl.Unlock()

	tmp, err := os.CreateTemp(dir, prefix+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("mailindex: create temp index file: %w", err)
	}
	tmpPath := tmp.Name()

	buf := make([]byte, headerSize)
	encodeHeader(buf, h)
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("mailindex: write header to temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("mailindex: close temp index file: %w", err)
	}

	primary := filepath.Join(dir, prefix)
	if err := os.Link(tmpPath, primary); err == nil {
		os.Remove(tmpPath)
		return primary, nil
	} else if !os.IsExist(err) {
		os.Remove(tmpPath)
		return "", fmt.Errorf("mailindex: link temp index file: %w", err)
	}

	hostname, herr := os.Hostname()
	if herr != nil {
		hostname = "unknown"
	}
	fallback := filepath.Join(dir, fmt.Sprintf("%s-%s", prefix, hostname))
	if err := os.Rename(tmpPath, fallback); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("mailindex: rename temp index file to fallback: %w", err)
	}

	return fallback, nil
}

// openFileForCreate is openFile's non-recovering twin: a just-created
// index file has no REBUILD/FSCK bits and no sibling collaborators yet,
// so it skips findIndex and the recovery driver.
func openFileForCreate(ctx context.Context, opts Options, name string) (*Index, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("mailindex: open %s: %w", name, err)
	}

	region := newMmapRegion(f)
	if err := region.refresh(); err != nil {
		f.Close()
		return nil, err
	}

	idx := &Index{
		dir:          opts.Dir,
		prefix:       filepath.Base(name),
		region:       region,
		lock:         newLockManager(f),
		savedIndexID: region.header().IndexID,
		backend:      opts.Backend,
	}

	if opts.MetricsEnabled {
		idx.metrics = metrics.NewIndexMetrics()
	}

	return idx, nil
}

// OpenOrCreate tries Open first; if no compatible index exists, it
// acquires the directory lock, re-probes (closing the race against a
// concurrent creator), and falls through to Create.
func OpenOrCreate(ctx context.Context, opts Options) (*Index, error) {
	opts.setDefaults()

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanOpenOrCreate, filepath.Join(opts.Dir, opts.Prefix), 0)
	defer span.End()

	idx, err := Open(ctx, opts)
	if err == nil {
		return idx, nil
	}

	dl, lockErr := dirlock.AcquireExclusive(opts.Dir)
	if lockErr != nil {
		return nil, fmt.Errorf("mailindex: acquire directory lock: %w", lockErr)
	}
	defer dl.Unlock()

	if name, ferr := findIndex(opts.Dir, opts.Prefix); ferr == nil {
		idx, err = openFile(ctx, opts, name)
		if err == nil {
			return idx, nil
		}
	}

	return Create(ctx, opts)
}
