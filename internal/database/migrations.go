package database

import (
	"context"
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations(ctx context.Context) error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createEventTeamMembersTable,
		createTicketsTable,
		createAttendeesTable,
		createWaitlistOffersTable,
		createPaymentsTable,
		createOutboxEventsTable,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id BIGSERIAL PRIMARY KEY,
    organizer_id BIGINT NOT NULL,
    title VARCHAR(500) NOT NULL,
    published BOOLEAN NOT NULL DEFAULT FALSE,
    starts_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createEventTeamMembersTable = `
CREATE TABLE IF NOT EXISTS event_team_members (
    event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL,
    role VARCHAR(50) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (event_id, user_id)
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id BIGSERIAL PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    type VARCHAR(20) NOT NULL DEFAULT 'Regular',
    price BIGINT NOT NULL DEFAULT 0,
    currency VARCHAR(3) NOT NULL DEFAULT 'usd',
    quantity INTEGER NOT NULL,
    sold INTEGER NOT NULL DEFAULT 0,
    limit_per_user INTEGER NOT NULL DEFAULT 10,
    expires_at TIMESTAMPTZ,
    is_donation BOOLEAN NOT NULL DEFAULT FALSE,
    min_donation_amount BIGINT NOT NULL DEFAULT 0,
    is_scholarship BOOLEAN NOT NULL DEFAULT FALSE,
    refund_policy JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (type IN ('Regular', 'VIP', 'EarlyBird', 'Group')),
    CHECK (quantity >= 0),
    CHECK (sold >= 0 AND sold <= quantity)
);`

const createAttendeesTable = `
CREATE TABLE IF NOT EXISTS attendees (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    ticket_id BIGINT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
    checked_in BOOLEAN NOT NULL DEFAULT FALSE,
    waitlisted BOOLEAN NOT NULL DEFAULT FALSE,
    vip BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS attendees_ticket_user_idx ON attendees (ticket_id, user_id);
CREATE INDEX IF NOT EXISTS attendees_waitlist_idx ON attendees (ticket_id, id) WHERE waitlisted;`

const createWaitlistOffersTable = `
CREATE TABLE IF NOT EXISTS waitlist_offers (
    id BIGSERIAL PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    ticket_id BIGINT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
    attendee_id BIGINT NOT NULL REFERENCES attendees(id) ON DELETE CASCADE,
    token VARCHAR(64) NOT NULL UNIQUE,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    expires_at TIMESTAMPTZ NOT NULL,
    claimed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'claimed', 'expired'))
);
CREATE UNIQUE INDEX IF NOT EXISTS waitlist_offers_one_pending_idx
ON waitlist_offers (attendee_id, ticket_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS waitlist_offers_pending_expiry_idx
ON waitlist_offers (ticket_id, expires_at) WHERE status = 'pending';`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    ticket_id BIGINT NOT NULL REFERENCES tickets(id),
    user_id BIGINT NOT NULL,
    quantity INTEGER NOT NULL DEFAULT 1,
    amount BIGINT NOT NULL,
    donation_amount BIGINT NOT NULL DEFAULT 0,
    currency VARCHAR(3) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    refunded_amount BIGINT NOT NULL DEFAULT 0,
    risk_score INTEGER NOT NULL DEFAULT 0,
    risk_level VARCHAR(10) NOT NULL DEFAULT 'low',
    risk_flags TEXT[] NOT NULL DEFAULT '{}',
    charge_id VARCHAR(255) UNIQUE,
    client_secret VARCHAR(255),
    idempotency_key VARCHAR(255) UNIQUE,
    payment_type VARCHAR(32) NOT NULL DEFAULT 'ticket',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'succeeded', 'failed', 'refunded', 'partial_refund')),
    CHECK (risk_level IN ('low', 'medium', 'high')),
    CHECK (refunded_amount >= 0 AND refunded_amount <= amount)
);
CREATE INDEX IF NOT EXISTS payments_user_created_idx ON payments (user_id, created_at);`

const createOutboxEventsTable = `
CREATE TABLE IF NOT EXISTS outbox_events (
    id BIGSERIAL PRIMARY KEY,
    event_type VARCHAR(100) NOT NULL,
    payload JSONB NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    next_retry_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    idempotency_key VARCHAR(64) NOT NULL UNIQUE,
    last_error TEXT,
    sent_at TIMESTAMPTZ,
    claimed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'processing', 'sent', 'failed'))
);
CREATE INDEX IF NOT EXISTS outbox_events_due_idx ON outbox_events (status, next_retry_at, id);`
