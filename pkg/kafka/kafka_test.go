package kafka

import (
	"errors"
	"testing"
)

type sample struct {
	UserID string `json:"userId"`
	Term   string `json:"term"`
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[sample]([]byte(`{"userId":"u1","term":"red shoe"}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got.UserID != "u1" || got.Term != "red shoe" {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeJSONMarksSkip(t *testing.T) {
	_, err := DecodeJSON[sample]([]byte(`{not json`))
	if !errors.Is(err, ErrSkip) {
		t.Errorf("err = %v, want ErrSkip in chain", err)
	}
}
