package audit

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashFunction computes the chain hash for an event given the hash of the
// event immediately before it. The genesis event (SequenceNumber == 1)
// hashes against genesisPreviousHash.
type HashFunction interface {
	Hash(event Event, previousHash string) string
}

// genesisPreviousHash seeds the chain for the first event ever appended.
const genesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"

// Blake2bHashFunction chains events with blake2b-256 over a canonical,
// deterministic encoding of the event's fields. Canonicalization matters
// because Metadata is a map: iteration order must not affect the hash.
type Blake2bHashFunction struct{}

func NewBlake2bHashFunction() Blake2bHashFunction {
	return Blake2bHashFunction{}
}

func (Blake2bHashFunction) Hash(event Event, previousHash string) string {
	sum := blake2b.Sum256(canonicalBytes(event, previousHash))
	return hex.EncodeToString(sum[:])
}

func canonicalBytes(event Event, previousHash string) []byte {
	var b strings.Builder
	fields := []string{
		previousHash,
		event.EventID,
		string(event.EventType),
		event.Action,
		string(event.Outcome),
		strconv.FormatInt(event.Timestamp.UTC().UnixNano(), 10),
		event.ActorID,
		event.ActorType,
		event.ResourceID,
		event.ResourceType,
		string(event.ResourceClassification),
		event.TenantID,
		event.CorrelationID,
		event.SessionID,
		event.IPAddress,
		event.UserAgent,
		event.Reason,
		strconv.FormatInt(event.SequenceNumber, 10),
	}
	for _, f := range fields {
		b.WriteString(f)
		b.WriteByte(0)
	}
	for _, k := range sortedKeys(event.Metadata) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(event.Metadata[k])
		b.WriteByte(0)
	}
	return []byte(b.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
