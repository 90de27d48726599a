package serializer

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sync"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// JSONSerializer is the default Serializer. Types must be registered with
// RegisterType before DeserializeObject can resolve a typeName back to a
// concrete Go type; SerializeObject needs no registration since json.Marshal
// works from the concrete value handed to it.
type JSONSerializer struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewJSON creates an empty JSONSerializer. Register every message and saga
// payload type the dispatch substrate round-trips before using it to
// deserialize.
func NewJSON() *JSONSerializer {
	return &JSONSerializer{types: make(map[string]reflect.Type)}
}

// RegisterType associates typeName with the Go type of prototype, so a later
// DeserializeObject(_, typeName) can construct a value to unmarshal into.
// prototype is only used for its type; its value is discarded.
func (s *JSONSerializer) RegisterType(typeName string, prototype interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.types[typeName] = t
}

func (s *JSONSerializer) SerializeObject(obj interface{}, typeName string) ([]byte, error) {
	if obj == nil {
		return nil, apperrors.ArgumentNull("obj")
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeArgumentInvalid, "serialize "+typeName, http.StatusBadRequest, err)
	}

	return data, nil
}

func (s *JSONSerializer) DeserializeObject(data []byte, typeName string) (interface{}, error) {
	if len(data) == 0 {
		return nil, apperrors.ArgumentNull("data")
	}

	s.mu.RLock()
	t, ok := s.types[typeName]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeArgumentInvalid, "unregistered type: "+typeName, http.StatusBadRequest)
	}

	value := reflect.New(t)
	if err := json.Unmarshal(data, value.Interface()); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeArgumentInvalid, "deserialize "+typeName, http.StatusBadRequest, err)
	}

	return value.Elem().Interface(), nil
}

// HasType reports whether typeName has been registered, so callers (the
// saga timeout delivery loop) can distinguish "cannot ever deliver this"
// from a transient deserialization error.
func (s *JSONSerializer) HasType(typeName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.types[typeName]
	return ok
}

// NewDefault constructs the zero value of the type registered under
// typeName, for callers that need a "null payload means default-constructed
// instance" fallback.
func (s *JSONSerializer) NewDefault(typeName string) (interface{}, error) {
	s.mu.RLock()
	t, ok := s.types[typeName]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeArgumentInvalid, "unregistered type: "+typeName, http.StatusBadRequest)
	}
	return reflect.New(t).Elem().Interface(), nil
}
