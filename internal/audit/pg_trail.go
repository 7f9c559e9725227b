package audit

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PGTrail persists events into Postgres, chaining each hash to the
// latest stored row.
type PGTrail struct {
	db     *sql.DB
	signer Signer
}

func NewPGTrail(db *sql.DB, signer Signer) *PGTrail {
	return &PGTrail{db: db, signer: signer}
}

func (p *PGTrail) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGTrail) lastHash(ctx context.Context) (string, error) {
	var h sql.NullString
	q := `SELECT hash FROM promotion_audit_events ORDER BY ts DESC LIMIT 1`
	if err := p.db.QueryRowContext(ctx, q).Scan(&h); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	if !h.Valid {
		return "", nil
	}
	return h.String, nil
}

func (p *PGTrail) Append(ctx context.Context, ev *Event) error {
	prev, err := p.lastHash(ctx)
	if err != nil {
		return fmt.Errorf("fetch last hash: %w", err)
	}
	hash, err := chain(ev, prev)
	if err != nil {
		return fmt.Errorf("chain event: %w", err)
	}
	ev.PrevHash = prev
	ev.Hash = hex.EncodeToString(hash)

	if p.signer != nil {
		sig, err := p.signer.Sign(hash)
		if err != nil {
			return fmt.Errorf("sign event: %w", err)
		}
		ev.Signature = base64.StdEncoding.EncodeToString(sig)
		ev.SignerID = p.signer.KeyID()
	}
	stamp(ev)

	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON := []byte("null")
	if ev.Metadata != nil {
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	q := `
		INSERT INTO promotion_audit_events
		  (id, event_type, payload, prev_hash, hash, signature, signer_id, ts, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	if _, err := p.db.ExecContext(ctx, q,
		ev.ID,
		ev.EventType,
		payloadJSON,
		ev.PrevHash,
		ev.Hash,
		ev.Signature,
		ev.SignerID,
		ev.Ts,
		metadataJSON,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Get fetches an event by id and unmarshals its JSON fields.
func (p *PGTrail) Get(ctx context.Context, id string) (*Event, error) {
	q := `SELECT id, event_type, payload, prev_hash, hash, signature, signer_id, ts, metadata FROM promotion_audit_events WHERE id=$1`
	row := p.db.QueryRowContext(ctx, q, id)

	var ev Event
	var payloadBytes, metaBytes []byte
	if err := row.Scan(&ev.ID, &ev.EventType, &payloadBytes, &ev.PrevHash, &ev.Hash, &ev.Signature, &ev.SignerID, &ev.Ts, &metaBytes); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query audit event: %w", err)
	}

	if len(payloadBytes) > 0 {
		if err := json.Unmarshal(payloadBytes, &ev.Payload); err != nil {
			ev.Payload = string(payloadBytes)
		}
	}
	if len(metaBytes) > 0 && string(metaBytes) != "null" {
		if err := json.Unmarshal(metaBytes, &ev.Metadata); err != nil {
			ev.Metadata = string(metaBytes)
		}
	}
	return &ev, nil
}
