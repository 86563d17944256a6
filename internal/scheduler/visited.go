package scheduler

import "sync"

// visitSet tracks URLs already claimed by a worker. Membership check and
// insertion are one atomic step, which is what prevents two workers from
// fetching the same URL.
type visitSet struct {
	seen sync.Map
}

func newVisitSet() *visitSet {
	return &visitSet{}
}

// MarkIfNew claims the URL and reports whether this caller was first.
func (v *visitSet) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := v.seen.LoadOrStore(url, struct{}{})
	return !loaded
}
