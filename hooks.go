package querycache

// Hooks receives high-signal cache events.
// Implementations MUST be cheap and non-blocking; they run on fetch and
// mutation paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// The store dropped an entry's value on read.
	// reason ∈ {"corrupt", "seq_mismatch", "provider_miss"}
	SelfHealEntry(storageKey, reason string)

	// Provider returned ok=false (or failed) on Set.
	ProviderSetRejected(storageKey string, err error)

	// A fetch finished after its generation moved; the result was discarded.
	FetchSuperseded(storageKey string)

	// A fetch attempt failed and will be retried.
	FetchRetried(storageKey string, attempt int, err error)

	// A fetch settled into the error state.
	FetchFailed(storageKey string, err error)

	// A mutation failed and its optimistic edits were restored.
	MutationRolledBack(keys int, err error)

	// GenStore errors. count is the number of keys involved.
	GenSnapshotError(count int, err error)
	GenBumpError(storageKey string, err error)
}

// NopHooks is the default.
type NopHooks struct{}

func (NopHooks) SelfHealEntry(string, string)      {}
func (NopHooks) ProviderSetRejected(string, error) {}
func (NopHooks) FetchSuperseded(string)            {}
func (NopHooks) FetchRetried(string, int, error)   {}
func (NopHooks) FetchFailed(string, error)         {}
func (NopHooks) MutationRolledBack(int, error)     {}
func (NopHooks) GenSnapshotError(int, error)       {}
func (NopHooks) GenBumpError(string, error)        {}
