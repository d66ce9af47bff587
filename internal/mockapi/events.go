package mockapi

import "github.com/castleatlas/atlas/internal/models"

// recordEvent keeps a posted analytics event. Only the newest maxEvents are
// kept.
func (s *Server) recordEvent(payload interface{}) (interface{}, error) {
	var ev models.AnalyticsEvent
	if err := decode(payload, &ev); err != nil {
		return nil, err
	}
	if err := validateRequest(ev); err != nil {
		return nil, err
	}

	s.tracked = append(s.tracked, ev)
	if n := len(s.tracked); n > maxEvents {
		s.tracked = append(s.tracked[:0], s.tracked[n-maxEvents:]...)
	}
	return map[string]string{"status": "accepted"}, nil
}

// Events returns the analytics events received so far, oldest first.
func (s *Server) Events() []models.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AnalyticsEvent, len(s.tracked))
	copy(out, s.tracked)
	return out
}
