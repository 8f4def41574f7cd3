package durability

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("durability")

// --------------------------------------------------------------------------
// Commit Journal
// --------------------------------------------------------------------------

// syncer is implemented by writers that can flush to stable storage
// (*os.File most prominently).
type syncer interface {
	Sync() error
}

// commit identifies one committed mutation awaiting its persistence
// acknowledgment.
type commit struct {
	key string
	cas uint64
}

// Journal acknowledges local persistence for committed mutations. Mutations
// are handed over post-commit via Commit and processed by a single worker
// goroutine, so the originating request never waits on disk I/O inside its
// key slot. Once a record is written (and synced, if the writer supports
// it), the journal reports persisted=1 to the tracker.
//
// A nil writer degrades to acknowledgment-only mode: commits are counted as
// persisted immediately. That is the correct behavior for a purely
// in-memory bucket, where "the node has it" is the strongest persistence
// statement the topology can make.
type Journal struct {
	tracker *Tracker
	w       io.Writer

	in       chan commit
	stopOnce sync.Once
	done     sync.WaitGroup
}

// NewJournal creates a journal feeding the given tracker and starts its
// worker.
func NewJournal(tracker *Tracker, w io.Writer) *Journal {
	j := &Journal{
		tracker: tracker,
		w:       w,
		in:      make(chan commit, 1024),
	}

	j.done.Add(1)
	go j.worker()

	return j
}

// Commit hands a committed mutation to the journal worker. It never blocks
// the caller beyond channel admission.
func (j *Journal) Commit(key string, cas uint64) {
	j.in <- commit{key: key, cas: cas}
}

// Close stops the worker after draining all pending commits.
func (j *Journal) Close() {
	j.stopOnce.Do(func() { close(j.in) })
	j.done.Wait()
}

// worker drains commits, writes them out and acknowledges persistence.
func (j *Journal) worker() {
	defer j.done.Done()

	for c := range j.in {
		if j.w != nil {
			if err := j.writeRecord(c); err != nil {
				// The mutation stays committed in memory; only its
				// persistence acknowledgment is withheld.
				log.Errorf("journal write for key %q (cas %d) failed: %v", c.key, c.cas, err)
				continue
			}
			if s, ok := j.w.(syncer); ok {
				if err := s.Sync(); err != nil {
					log.Errorf("journal sync for key %q (cas %d) failed: %v", c.key, c.cas, err)
					continue
				}
			}
		}
		j.tracker.Record(c.key, c.cas, 1, 0)
	}
}

// writeRecord appends one record: key length (4 bytes big endian), key
// bytes, cas (8 bytes big endian).
func (j *Journal) writeRecord(c commit) error {
	buf := make([]byte, 4+len(c.key)+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(c.key)))
	copy(buf[4:], c.key)
	binary.BigEndian.PutUint64(buf[4+len(c.key):], c.cas)
	_, err := j.w.Write(buf)
	return err
}
