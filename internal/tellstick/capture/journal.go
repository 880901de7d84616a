package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// DefaultLimit is the number of packets Recent returns for a limit <= 0.
const DefaultLimit = 100

// maxLimit caps Recent.
const maxLimit = 10000

// ErrNoDatagram is returned by Record for a packet without raw bytes.
var ErrNoDatagram = errors.New("tellstick: packet has no datagram")

// Packet is one journaled datagram.
type Packet struct {
	ID         int64           `json:"id"`
	ReceivedAt time.Time       `json:"received_at"`
	Source     string          `json:"source,omitempty"`
	Raw        string          `json:"raw"`
	Command    string          `json:"command,omitempty"`
	Event      *protocol.Event `json:"event,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// FromResult converts a session result. NoEvent markers yield false.
func FromResult(r controller.Result, source string) (Packet, bool) {
	if r.IsNoEvent() || r.Raw == nil {
		return Packet{}, false
	}
	p := Packet{
		ReceivedAt: r.Received,
		Source:     source,
		Raw:        string(r.Raw),
		Command:    r.Command,
		Event:      r.Event,
	}
	if r.Err != nil {
		p.Error = r.Err.Error()
	}
	return p, true
}

// Journal stores packets in the database's packets table.
//
// Thread Safety: All methods are safe for concurrent use.
type Journal struct {
	db *database.DB
}

// NewJournal returns a journal on db. The packets migration must have been
// applied.
func NewJournal(db *database.DB) *Journal {
	return &Journal{db: db}
}

// Record stores p and returns its id. A zero ReceivedAt is set to now.
func (j *Journal) Record(ctx context.Context, p Packet) (int64, error) {
	if p.Raw == "" {
		return 0, ErrNoDatagram
	}
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}

	var (
		eventJSON                   sql.NullString
		class, proto, model, device string
	)
	if p.Event != nil {
		data, err := json.Marshal(p.Event)
		if err != nil {
			return 0, fmt.Errorf("encoding event: %w", err)
		}
		eventJSON = sql.NullString{String: string(data), Valid: true}
		class = string(p.Event.Class)
		proto = p.Event.Protocol
		model = p.Event.Model
		device = p.Event.DeviceKey()
	}

	res, err := j.db.ExecContext(ctx, `
		INSERT INTO packets (received_at, source, raw, command, class, protocol, model, device, event, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ReceivedAt.UnixNano(), p.Source, p.Raw, p.Command,
		class, proto, model, device, eventJSON, p.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("recording packet: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit packets, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Packet, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, received_at, source, raw, command, event, error
		FROM packets
		ORDER BY received_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying packets: %w", err)
	}
	return scanPackets(rows)
}

// Since returns the packets received at or after t, oldest first.
func (j *Journal) Since(ctx context.Context, t time.Time) ([]Packet, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, received_at, source, raw, command, event, error
		FROM packets
		WHERE received_at >= ?
		ORDER BY received_at, id`, t.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("querying packets: %w", err)
	}
	return scanPackets(rows)
}

// Prune deletes packets received before olderThan and returns how many
// were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, "DELETE FROM packets WHERE received_at < ?", olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning packets: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of journaled packets.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM packets").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting packets: %w", err)
	}
	return n, nil
}

func scanPackets(rows *sql.Rows) ([]Packet, error) {
	defer rows.Close()

	var out []Packet
	for rows.Next() {
		var (
			p         Packet
			received  int64
			eventJSON sql.NullString
		)
		if err := rows.Scan(&p.ID, &received, &p.Source, &p.Raw, &p.Command, &eventJSON, &p.Error); err != nil {
			return nil, fmt.Errorf("scanning packet: %w", err)
		}
		p.ReceivedAt = time.Unix(0, received)
		if eventJSON.Valid {
			var ev protocol.Event
			if err := json.Unmarshal([]byte(eventJSON.String), &ev); err != nil {
				return nil, fmt.Errorf("decoding stored event %d: %w", p.ID, err)
			}
			p.Event = &ev
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating packets: %w", err)
	}
	return out, nil
}

// vacuumAfter is the prune size that triggers a VACUUM.
const vacuumAfter = 10000

// Retain prunes packets older than keep immediately and then every
// interval until ctx ends. A prune of vacuumAfter rows or more is followed
// by a VACUUM. report, when set, receives each prune outcome.
func (j *Journal) Retain(ctx context.Context, keep, interval time.Duration, report func(removed int64, err error)) {
	prune := func(now time.Time) {
		n, err := j.Prune(ctx, now.Add(-keep))
		if err == nil && n >= vacuumAfter {
			err = j.db.Vacuum(ctx)
		}
		if report != nil && (n > 0 || err != nil) {
			report(n, err)
		}
	}

	prune(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			prune(now)
		}
	}
}
