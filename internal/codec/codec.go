// Package codec provides deterministic binary encoding and content keys for
// values that cross the fan-out boundary.
package codec

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/hylla/itemflow/internal/domain"
)

// encMode uses Core Deterministic Encoding: equal values give equal bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields.
var decMode cbor.DecMode

// deliveryDomainKey separates delivery keys from any other BLAKE3 use.
var deliveryDomainKey = [32]byte{
	'i', 't', 'e', 'm', 'f', 'l', 'o', 'w', '.', 'n', 'o', 't', 'i', 'f', 'y', '.',
	'd', 'e', 'l', 'i', 'v', 'e', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0,
}

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// deliveryRecord is the content a delivery key commits to. Recipients and
// the notification id are excluded so every copy of one event shares a key.
type deliveryRecord struct {
	_         struct{} `cbor:",toarray"`
	Kind      string
	BoardID   string
	ItemID    string
	Payload   domain.NotificationPayload
	CreatedAt int64
}

// DeliveryKey returns the hex BLAKE3 keyed hash of the notification content.
func DeliveryKey(n domain.Notification) (string, error) {
	data, err := Marshal(deliveryRecord{
		Kind:      string(n.Kind),
		BoardID:   n.BoardID,
		ItemID:    n.ItemID,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt.UTC().UnixNano(),
	})
	if err != nil {
		return "", fmt.Errorf("encode delivery record: %w", err)
	}
	return hex.EncodeToString(keyedSum(data)), nil
}

// EncodeNotification encodes a notification for durable storage.
func EncodeNotification(n domain.Notification) ([]byte, error) {
	return Marshal(storedNotification{
		ID:          n.ID,
		Kind:        string(n.Kind),
		BoardID:     n.BoardID,
		ItemID:      n.ItemID,
		Recipients:  n.Recipients,
		Payload:     n.Payload,
		DeliveryKey: n.DeliveryKey,
		CreatedAt:   n.CreatedAt.UTC().UnixNano(),
	})
}

// DecodeNotification reverses EncodeNotification.
func DecodeNotification(data []byte) (domain.Notification, error) {
	var stored storedNotification
	if err := Unmarshal(data, &stored); err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return domain.Notification{
		ID:          stored.ID,
		Kind:        domain.NotificationKind(stored.Kind),
		BoardID:     stored.BoardID,
		ItemID:      stored.ItemID,
		Recipients:  stored.Recipients,
		Payload:     stored.Payload,
		DeliveryKey: stored.DeliveryKey,
		CreatedAt:   time.Unix(0, stored.CreatedAt).UTC(),
	}, nil
}

// storedNotification is the CBOR map layout persisted for inbox rows.
type storedNotification struct {
	ID          string                     `cbor:"1,keyasint"`
	Kind        string                     `cbor:"2,keyasint"`
	BoardID     string                     `cbor:"3,keyasint"`
	ItemID      string                     `cbor:"4,keyasint"`
	Recipients  []string                   `cbor:"5,keyasint,omitempty"`
	Payload     domain.NotificationPayload `cbor:"6,keyasint"`
	DeliveryKey string                     `cbor:"7,keyasint"`
	CreatedAt   int64                      `cbor:"8,keyasint"`
}

// keyedSum hashes data under the delivery domain key.
func keyedSum(data []byte) []byte {
	hasher, err := blake3.NewKeyed(deliveryDomainKey[:])
	if err != nil {
		panic("codec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	return hasher.Sum(nil)
}
