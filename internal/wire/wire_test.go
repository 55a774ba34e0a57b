package wire

import (
	"errors"
	"testing"

	"github.com/atch2203/split-the-bill/internal/bill"
)

func TestEncodeDecodeCarriesPayload(t *testing.T) {
	state := bill.New()
	state.Items = []bill.Item{{ID: "i1", Name: "Pizza", Price: 12, Quantity: 1, AssignedTo: []string{}}}

	frame, err := Encode(Snapshot{State: state})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	snap, ok := msg.(Snapshot)
	if !ok {
		t.Fatalf("decoded %T, want Snapshot", msg)
	}
	if !snap.State.Equal(state) {
		t.Fatalf("snapshot state diverged: %+v", snap.State)
	}
}

func TestDecodeEmptyPayloadMessages(t *testing.T) {
	frame, err := Encode(RequestState{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := msg.(RequestState); !ok {
		t.Fatalf("decoded %T, want RequestState", msg)
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"selfDestruct"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestAuthResultReasonOmittedOnSuccess(t *testing.T) {
	frame, err := Encode(AuthResult{Success: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res := msg.(AuthResult)
	if !res.Success || res.Reason != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
