// Package memory is an in-process ledger used by tests and single-node
// development. A transaction holds the store mutex for its whole duration and
// rolls back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/models"
)

type txKey struct{}

type teamKey struct{ eventID, userID int64 }

type state struct {
	seq       int64
	events    map[int64]models.Event
	team      map[teamKey]string
	tickets   map[int64]models.Ticket
	attendees map[int64]models.Attendee
	offers    map[int64]models.WaitlistOffer
	payments  map[int64]models.Payment
	outbox    map[int64]models.OutboxEvent
}

func newState() *state {
	return &state{
		events:    make(map[int64]models.Event),
		team:      make(map[teamKey]string),
		tickets:   make(map[int64]models.Ticket),
		attendees: make(map[int64]models.Attendee),
		offers:    make(map[int64]models.WaitlistOffer),
		payments:  make(map[int64]models.Payment),
		outbox:    make(map[int64]models.OutboxEvent),
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:       s.seq,
		events:    make(map[int64]models.Event, len(s.events)),
		team:      make(map[teamKey]string, len(s.team)),
		tickets:   make(map[int64]models.Ticket, len(s.tickets)),
		attendees: make(map[int64]models.Attendee, len(s.attendees)),
		offers:    make(map[int64]models.WaitlistOffer, len(s.offers)),
		payments:  make(map[int64]models.Payment, len(s.payments)),
		outbox:    make(map[int64]models.OutboxEvent, len(s.outbox)),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.team {
		c.team[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.attendees {
		c.attendees[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// WithTx serializes fn against every other store call. A nested call joins
// the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Events

func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	return s.do(ctx, func(st *state) error {
		e.ID = st.nextID()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		st.events[e.ID] = *e
		return nil
	})
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	var out *models.Event
	err := s.do(ctx, func(st *state) error {
		if e, ok := st.events[id]; ok {
			out = &e
		}
		return nil
	})
	return out, err
}

func (s *Store) AddTeamMember(ctx context.Context, eventID, userID int64, role string) error {
	return s.do(ctx, func(st *state) error {
		st.team[teamKey{eventID, userID}] = role
		return nil
	})
}

func (s *Store) GetTeamRole(ctx context.Context, eventID, userID int64) (string, error) {
	var role string
	err := s.do(ctx, func(st *state) error {
		role = st.team[teamKey{eventID, userID}]
		return nil
	})
	return role, err
}

// Tickets

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.events[t.EventID]; !ok {
			return apperrors.ErrEventNotFound
		}
		t.ID = st.nextID()
		now := time.Now().UTC()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		st.tickets[t.ID] = *t
		return nil
	})
}

func (s *Store) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	var out *models.Ticket
	err := s.do(ctx, func(st *state) error {
		if t, ok := st.tickets[id]; ok {
			out = &t
		}
		return nil
	})
	return out, err
}

// GetTicketForUpdate is GetTicket; the store mutex already serializes transactions.
func (s *Store) GetTicketForUpdate(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.GetTicket(ctx, id)
}

func (st *state) pendingOffers(ticketID int64, now time.Time) int {
	n := 0
	for _, o := range st.offers {
		if o.TicketID == ticketID && o.Status == models.OfferPending && !o.Lapsed(now) {
			n++
		}
	}
	return n
}

func (s *Store) IncrementSold(ctx context.Context, ticketID int64, n int, now time.Time) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		t, found := st.tickets[ticketID]
		if !found {
			return nil
		}
		if t.Sold+st.pendingOffers(ticketID, now)+n > t.Quantity {
			return nil
		}
		t.Sold += n
		t.UpdatedAt = now
		st.tickets[ticketID] = t
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) DecrementSold(ctx context.Context, ticketID int64) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		t, found := st.tickets[ticketID]
		if !found || t.Sold <= 0 {
			return nil
		}
		t.Sold--
		st.tickets[ticketID] = t
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ClaimSold(ctx context.Context, ticketID int64) error {
	return s.do(ctx, func(st *state) error {
		t, found := st.tickets[ticketID]
		if !found {
			return apperrors.ErrTicketNotFound
		}
		if t.Sold < t.Quantity {
			t.Sold++
		}
		st.tickets[ticketID] = t
		return nil
	})
}

func (s *Store) CountPendingOffers(ctx context.Context, ticketID int64, now time.Time) (int, error) {
	var n int
	err := s.do(ctx, func(st *state) error {
		n = st.pendingOffers(ticketID, now)
		return nil
	})
	return n, err
}

// Attendees

func (s *Store) CreateAttendee(ctx context.Context, a *models.Attendee) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.tickets[a.TicketID]; !ok {
			return apperrors.ErrTicketNotFound
		}
		a.ID = st.nextID()
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		st.attendees[a.ID] = *a
		return nil
	})
}

func (s *Store) GetAttendee(ctx context.Context, id int64) (*models.Attendee, error) {
	var out *models.Attendee
	err := s.do(ctx, func(st *state) error {
		if a, ok := st.attendees[id]; ok {
			out = &a
		}
		return nil
	})
	return out, err
}

func (s *Store) CountUserAttendees(ctx context.Context, ticketID, userID int64) (int, error) {
	var n int
	err := s.do(ctx, func(st *state) error {
		for _, a := range st.attendees {
			if a.TicketID == ticketID && a.UserID == userID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// DeleteAttendee also removes the attendee's offers, like the foreign key cascade.
func (s *Store) DeleteAttendee(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		if _, found := st.attendees[id]; !found {
			return nil
		}
		delete(st.attendees, id)
		for oid, o := range st.offers {
			if o.AttendeeID == id {
				delete(st.offers, oid)
			}
		}
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ConfirmAttendee(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		a, found := st.attendees[id]
		if !found || !a.Waitlisted {
			return nil
		}
		a.Waitlisted = false
		st.attendees[id] = a
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) MarkCheckedIn(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		a, found := st.attendees[id]
		if !found || a.CheckedIn {
			return nil
		}
		a.CheckedIn = true
		st.attendees[id] = a
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ListWaitlisted(ctx context.Context, ticketID int64) ([]models.Attendee, error) {
	var out []models.Attendee
	err := s.do(ctx, func(st *state) error {
		for _, a := range st.attendees {
			if a.TicketID == ticketID && a.Waitlisted {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ListAttendees(ctx context.Context, ticketID int64) ([]models.Attendee, error) {
	var out []models.Attendee
	err := s.do(ctx, func(st *state) error {
		for _, a := range st.attendees {
			if a.TicketID == ticketID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// Waitlist offers

func (s *Store) CreateOffer(ctx context.Context, o *models.WaitlistOffer) error {
	return s.do(ctx, func(st *state) error {
		for _, existing := range st.offers {
			if existing.Token == o.Token {
				return apperrors.New(apperrors.Conflict, "duplicate offer token")
			}
			if o.Status == models.OfferPending && existing.Status == models.OfferPending &&
				existing.AttendeeID == o.AttendeeID && existing.TicketID == o.TicketID {
				return apperrors.New(apperrors.Conflict, "attendee already holds a pending offer")
			}
		}
		o.ID = st.nextID()
		st.offers[o.ID] = *o
		return nil
	})
}

func (s *Store) GetOfferByToken(ctx context.Context, token string) (*models.WaitlistOffer, error) {
	var out *models.WaitlistOffer
	err := s.do(ctx, func(st *state) error {
		for _, o := range st.offers {
			if o.Token == token {
				out = &o
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) HasPendingOffer(ctx context.Context, attendeeID, ticketID int64) (bool, error) {
	var has bool
	err := s.do(ctx, func(st *state) error {
		for _, o := range st.offers {
			if o.AttendeeID == attendeeID && o.TicketID == ticketID && o.Status == models.OfferPending {
				has = true
				return nil
			}
		}
		return nil
	})
	return has, err
}

func (s *Store) TransitionOffer(ctx context.Context, id int64, from, to models.OfferStatus, at time.Time) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		o, found := st.offers[id]
		if !found || o.Status != from {
			return nil
		}
		o.Status = to
		if to == models.OfferClaimed {
			o.ClaimedAt = &at
		}
		st.offers[id] = o
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ExpireOffers(ctx context.Context, ticketID int64, now time.Time) ([]models.WaitlistOffer, error) {
	var out []models.WaitlistOffer
	err := s.do(ctx, func(st *state) error {
		for id, o := range st.offers {
			if o.Status != models.OfferPending || !o.Lapsed(now) {
				continue
			}
			if ticketID != 0 && o.TicketID != ticketID {
				continue
			}
			o.Status = models.OfferExpired
			st.offers[id] = o
			out = append(out, o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ListOffers(ctx context.Context, ticketID int64) ([]models.WaitlistOffer, error) {
	var out []models.WaitlistOffer
	err := s.do(ctx, func(st *state) error {
		for _, o := range st.offers {
			if o.TicketID == ticketID {
				out = append(out, o)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
