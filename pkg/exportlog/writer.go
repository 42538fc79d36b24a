package exportlog

// DefaultBatchSize is the number of applied commits between flushes.
const DefaultBatchSize = 50

// Writer accumulates commit entries and flushes the document every batch
// applied commits. Carried entries never trigger a flush on their own.
type Writer struct {
	store   *Store
	doc     *Document
	batch   int
	pending int
	flushes int
}

// NewWriter writes doc through store. A non-positive batch uses DefaultBatchSize.
func NewWriter(store *Store, doc *Document, batch int) *Writer {
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	return &Writer{store: store, doc: doc, batch: batch}
}

// Document returns the document being written.
func (w *Writer) Document() *Document {
	return w.doc
}

// Carry appends an entry taken over unchanged from a previous run.
func (w *Writer) Carry(c Commit) {
	w.doc.Commits = append(w.doc.Commits, c)
}

// Append adds a newly processed entry and flushes when the batch is full.
func (w *Writer) Append(c Commit) error {
	w.doc.Commits = append(w.doc.Commits, c)
	w.pending++

	if w.pending >= w.batch {
		return w.Flush()
	}

	return nil
}

// Flush writes the document unconditionally.
func (w *Writer) Flush() error {
	err := w.store.Save(w.doc)
	if err != nil {
		return err
	}

	w.pending = 0
	w.flushes++

	return nil
}

// Flushes returns how many times the document was written.
func (w *Writer) Flushes() int {
	return w.flushes
}
