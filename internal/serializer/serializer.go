// Package serializer provides the Serializer collaborator interface the
// outbox and audit store use to turn domain objects into the opaque bytes
// they persist.
package serializer

// Serializer turns a typed object into bytes. Output is deterministic
// enough that the same (obj, type) produces byte-identical output across
// calls, which the audit store relies on for hash-chain canonicalisation
// and the outbox relies on for safe redelivery of an unchanged payload.
type Serializer interface {
	SerializeObject(obj interface{}, typeName string) ([]byte, error)
	DeserializeObject(data []byte, typeName string) (interface{}, error)
}
