package state

import "sync"

// StartResult records the outcome of the most recent start attempt.
type StartResult string

const (
	// StartResultNone means no outcome has been recorded yet.
	StartResultNone StartResult = "none"
	// StartResultSuccess means the webapp reported SERVING.
	StartResultSuccess StartResult = "success"
	// StartResultError means the last start attempt failed. An error result
	// is sticky across Reset so controllers can observe the failure.
	StartResultError StartResult = "error"
)

// Snapshot is a consistent copy of the shared service context. It is the
// read surface controllers see: all failure reporting happens through these
// fields, never through errors handed back over the command channel.
type Snapshot struct {
	IsStarting  bool        `json:"is_starting"`
	IsStopped   bool        `json:"is_stopped"`
	StartResult StartResult `json:"start_result"`
	BaseURL     string      `json:"base_url"`
	ExtraURL    string      `json:"extra_url"`
	AppKey      string      `json:"app_key"`
	HomePath    string      `json:"home_path"`
}

// Context is the shared record of observable service state. It is written by
// the supervisor's command loop and by webapp lifecycle event handlers, which
// run on different goroutines; a single mutex guards every mutation and every
// multi-field read so no reader can observe a half-applied transition.
type Context struct {
	mu       sync.Mutex
	snap     Snapshot
	onChange func(Snapshot)
}

// NewContext returns a context in its initial stopped state.
func NewContext() *Context {
	return &Context{
		snap: Snapshot{
			IsStopped:   true,
			StartResult: StartResultNone,
		},
	}
}

// SetOnChange registers a hook invoked with the post-mutation snapshot.
// The hook runs with the context mutex held so published snapshots keep
// mutation order; it must not call back into the Context.
func (c *Context) SetOnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Snapshot returns a consistent copy of all fields.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// MarkStarting records that a start has been accepted but the webapp has not
// reported SERVING yet. Called by the supervisor before the transition is
// issued so controllers observe "starting" ahead of any lifecycle event.
func (c *Context) MarkStarting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.IsStarting = true
	c.snap.IsStopped = false
	c.snap.StartResult = StartResultNone
	c.changed()
}

// SetServing records a successful start with the given reachable base URL.
func (c *Context) SetServing(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.BaseURL = baseURL
	c.snap.StartResult = StartResultSuccess
	c.snap.IsStarting = false
	c.changed()
}

// SetExtraServing records the auxiliary (zip content) URL.
func (c *Context) SetExtraServing(extraURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.ExtraURL = extraURL
	c.changed()
}

// SetStopped records that the webapp has gone idle. Unlike Reset it does not
// touch the app key and always clears the start result.
func (c *Context) SetStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.IsStarting = false
	c.snap.StartResult = StartResultNone
	c.snap.BaseURL = ""
	c.snap.ExtraURL = ""
	c.snap.IsStopped = true
	c.changed()
}

// SetError records a failed start attempt.
func (c *Context) SetError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.IsStarting = false
	c.snap.StartResult = StartResultError
	c.snap.IsStopped = true
	c.snap.BaseURL = ""
	c.snap.ExtraURL = ""
	c.changed()
}

// Reset applies full-stop semantics on final shutdown. An error start result
// survives the reset; everything else returns to the initial stopped state.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.IsStarting = false
	if c.snap.StartResult != StartResultError {
		c.snap.StartResult = StartResultNone
	}
	c.snap.IsStopped = true
	c.snap.BaseURL = ""
	c.snap.ExtraURL = ""
	c.snap.AppKey = ""
	c.changed()
}

// SetAppKey publishes the device credential.
func (c *Context) SetAppKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.AppKey = key
	c.changed()
}

// SetHomePath publishes the filesystem location the webapp is using.
func (c *Context) SetHomePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.HomePath = path
	c.changed()
}

func (c *Context) changed() {
	if c.onChange != nil {
		c.onChange(c.snap)
	}
}
