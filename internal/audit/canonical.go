package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MarshalCanonicalEvent renders the full event envelope in canonical
// form. This is the byte shape archived to object storage; together
// with MarshalCanonical over the payload it keeps hashes reproducible
// across sinks.
func MarshalCanonicalEvent(ev *Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	return MarshalCanonical(map[string]interface{}{
		"id":        ev.ID,
		"eventType": ev.EventType,
		"payload":   ev.Payload,
		"prevHash":  ev.PrevHash,
		"hash":      ev.Hash,
		"signature": ev.Signature,
		"signerId":  ev.SignerID,
		"ts":        ev.Ts.Format(time.RFC3339Nano),
		"metadata":  ev.Metadata,
	})
}

// MarshalCanonical returns deterministic JSON for a JSON-like value:
// object keys sorted, array order preserved, numbers kept textual.
// Chained hashes must not depend on Go map iteration order.
func MarshalCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalEncode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalEncode(buf *bytes.Buffer, v interface{}) error {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool, string, float64, json.Number:
		return encodeScalar(buf, vv)
	case []interface{}:
		return encodeArray(buf, vv)
	case map[string]interface{}:
		return encodeObject(buf, vv)
	default:
		// Structs and other concrete types go through a marshal and a
		// UseNumber re-decode so they canonicalize like generic maps.
		b, err := json.Marshal(vv)
		if err != nil {
			return fmt.Errorf("canonical marshal fallback: %w", err)
		}
		var tmp interface{}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&tmp); err != nil {
			return fmt.Errorf("canonical decode fallback: %w", err)
		}
		return canonicalEncode(buf, tmp)
	}
	return nil
}

func encodeScalar(buf *bytes.Buffer, v interface{}) error {
	if n, ok := v.(json.Number); ok {
		buf.WriteString(n.String())
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := canonicalEncode(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := canonicalEncode(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
