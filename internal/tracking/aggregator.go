package tracking

// Aggregator rolls file statuses up to car completion.
type Aggregator struct {
	store *Store
}

// NewAggregator returns an aggregator over store.
func NewAggregator(store *Store) *Aggregator {
	return &Aggregator{store: store}
}

// Reevaluate inspects every record of carID. When all are verified or
// done, verified members become done and the car's marker is set; the
// first done_at is kept. Otherwise nothing changes, so a car already
// marked done is never regressed. It reports whether the car is complete;
// a failed write reports false and leaves the store as it was.
func (a *Aggregator) Reevaluate(carID string) (bool, error) {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.file.CarRecords(carID)
	if len(members) == 0 {
		return false, nil
	}
	for _, r := range members {
		if !r.Status.Completed() {
			return false, nil
		}
	}

	prev := make(map[string]*Record)
	for _, r := range members {
		if r.Status == StatusVerified {
			key := Key(r.FileID)
			next := r.clone()
			s.apply(next, StatusDone)
			prev[key] = r
			s.file.Processed[key] = next
		}
	}
	marker, hadMarker := s.file.Cars[carID]
	markerChanged := !hadMarker || marker.Status != StatusDone
	if markerChanged {
		now := s.now()
		s.file.Cars[carID] = &CarMarker{Status: StatusDone, DoneAt: &now}
	}
	if len(prev) == 0 && !markerChanged {
		return true, nil
	}
	if err := s.persist(); err != nil {
		for key, r := range prev {
			s.file.Processed[key] = r
		}
		if hadMarker {
			s.file.Cars[carID] = marker
		} else {
			delete(s.file.Cars, carID)
		}
		return false, err
	}
	return true, nil
}
