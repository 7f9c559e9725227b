// Package audit records promotion steps as a hash-chained, signed
// trail. The trail is write-only telemetry: the promotion state
// machine never reads it back, so the platform remains the sole
// arbiter of a version's stage.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the orchestrator.
const (
	EventPromotionStep     = "promotion.step"
	EventPromotionRollback = "promotion.rollback"
)

// Event is one signed entry in the trail.
type Event struct {
	ID        string      `json:"id"`
	EventType string      `json:"eventType"`
	Payload   interface{} `json:"payload"`
	PrevHash  string      `json:"prevHash"`
	Hash      string      `json:"hash"`
	Signature string      `json:"signature"`
	SignerID  string      `json:"signerId"`
	Ts        time.Time   `json:"ts"`
	Metadata  interface{} `json:"metadata,omitempty"`
}

// Trail appends events to a sink. Implementations populate the chain
// fields (PrevHash, Hash, Signature) where the sink supports them.
type Trail interface {
	Append(ctx context.Context, ev *Event) error
}

// Signer signs event hashes. *evidence.Ed25519Signer satisfies it.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	KeyID() string
}

var ErrNotFound = errors.New("audit event not found")

func NewUUID() string {
	return uuid.NewString()
}

// HashBytes computes the SHA-256 digest bytes for input data.
func HashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// HashHex returns the hex-encoded SHA-256 of the input bytes.
func HashHex(b []byte) string {
	return hex.EncodeToString(HashBytes(b))
}

// chain fills in the chained hash for an event given the previous head
// hash: sha256(canonical payload || prev hash bytes).
func chain(ev *Event, prev string) ([]byte, error) {
	canon, err := MarshalCanonical(ev.Payload)
	if err != nil {
		return nil, err
	}
	concat := canon
	if prev != "" {
		prevBytes, err := hex.DecodeString(prev)
		if err != nil {
			return nil, err
		}
		concat = append(concat, prevBytes...)
	}
	return HashBytes(concat), nil
}

func stamp(ev *Event) {
	if ev.ID == "" {
		ev.ID = NewUUID()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
}
