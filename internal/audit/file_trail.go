package audit

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileTrail archives events as JSON files in a directory and keeps a
// head.hash file pointing at the latest chain head. Intended for
// local runs and CI workspaces without a database.
type FileTrail struct {
	dir    string
	signer Signer
}

func NewFileTrail(dir string, signer Signer) *FileTrail {
	_ = os.MkdirAll(dir, 0o755)
	return &FileTrail{dir: dir, signer: signer}
}

func (f *FileTrail) Append(ctx context.Context, ev *Event) error {
	prev := f.readHead()
	hash, err := chain(ev, prev)
	if err != nil {
		return fmt.Errorf("chain event: %w", err)
	}
	ev.PrevHash = prev
	ev.Hash = hex.EncodeToString(hash)

	if f.signer != nil {
		sig, err := f.signer.Sign(hash)
		if err != nil {
			return fmt.Errorf("sign event: %w", err)
		}
		ev.Signature = base64.StdEncoding.EncodeToString(sig)
		ev.SignerID = f.signer.KeyID()
	}
	stamp(ev)

	b, _ := json.MarshalIndent(ev, "", "  ")
	path := filepath.Join(f.dir, fmt.Sprintf("audit_%s.json", ev.ID))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, "head.hash"), []byte(ev.Hash), 0o644); err != nil {
		return fmt.Errorf("write head.hash: %w", err)
	}
	return nil
}

// Get retrieves an archived event by id.
func (f *FileTrail) Get(id string) (*Event, error) {
	b, err := os.ReadFile(filepath.Join(f.dir, fmt.Sprintf("audit_%s.json", id)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (f *FileTrail) readHead() string {
	b, err := os.ReadFile(filepath.Join(f.dir, "head.hash"))
	if err != nil {
		return ""
	}
	return string(b)
}
