package transport

import "testing"

func TestPayloadField_ExtractsNestedField(t *testing.T) {
	message := Message{
		MessageID:   "m1",
		MessageType: "OrderShipped",
		Payload:     []byte(`{"order":{"region":"eu-west"}}`),
	}

	value, ok := PayloadField(message, "order.region")
	if !ok {
		t.Fatal("expected field to exist")
	}
	if value != "eu-west" {
		t.Fatalf("expected eu-west, got %q", value)
	}
}

func TestPayloadField_MissingFieldReportsNotExists(t *testing.T) {
	message := Message{Payload: []byte(`{"order":{"region":"eu-west"}}`)}

	_, ok := PayloadField(message, "order.currency")
	if ok {
		t.Fatal("expected field to not exist")
	}
}
