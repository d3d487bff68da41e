package pipeline

// Listener is notified after a pipeline task wrote its output.
// The live-reload server implements it.
type Listener interface {
	// Reload asks every connected browser to reload the page.
	Reload()
	// Inject hot-swaps the given stylesheets, given relative to the
	// project root.
	Inject(paths ...string)
}

// Notify selects how a successful run is announced to the Listener.
type Notify int

const (
	// NotifyReload triggers a full page reload when the run wrote files.
	NotifyReload Notify = iota
	// NotifyInject hot-swaps the written files.
	NotifyInject
	// NotifyNone announces nothing.
	NotifyNone
)
