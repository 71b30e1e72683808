package model

// SyncResult counts the outcome of pushing locally pending records.
type SyncResult struct {
	Pushed  int
	Pending int
	Dropped int
}

func (r SyncResult) Add(o SyncResult) SyncResult {
	return SyncResult{
		Pushed:  r.Pushed + o.Pushed,
		Pending: r.Pending + o.Pending,
		Dropped: r.Dropped + o.Dropped,
	}
}
