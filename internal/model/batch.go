package model

// BatchEntry pairs a stored record id with the identity fields that
// go out in the webhook payload.
type BatchEntry struct {
	RecordID string
	Identity Identity
}

// DispatchBatch is the transient group of records sent together in one
// webhook call. It lives only for the duration of a single
// dispatch-and-correlate cycle and is never persisted.
type DispatchBatch struct {
	UploadID string
	Number   int
	Token    string // correlation token echoed back by async callbacks
	Entries  []BatchEntry
}

// RecordIDs returns the ids of all entries in dispatch order.
func (b DispatchBatch) RecordIDs() []string {
	ids := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		ids[i] = e.RecordID
	}
	return ids
}
