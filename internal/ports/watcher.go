package ports

// Watcher reports extracted-document files dropped into an inbox directory.
// The adapter filters out anything that is not a finished *.json document
// (hidden files, editor temp files, partial uploads) before invoking onReady.
// Only one Watch call should be active at a time.
type Watcher interface {
	// Watch starts monitoring dir. onReady is called once a document file has
	// stopped changing, and once for every document already present when
	// Watch starts. The callback may be invoked from any goroutine.
	Watch(dir string, onReady func(path string)) error

	// Stop ends monitoring and releases all resources. After Stop returns,
	// no further onReady calls will fire. Safe to call multiple times.
	Stop() error
}
