package validate

import (
	"strings"
	"testing"
)

type inviteArgs struct {
	MaxUses int    `json:"max_uses" validate:"min=0,max=100"`
	MaxAge  int    `json:"max_age" validate:"min=0,max=604800"`
	Channel string `json:"channel_id" validate:"required,numeric"`
}

func TestStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := Struct(&inviteArgs{MaxUses: 1, MaxAge: 3600, Channel: "42"}); err != nil {
			t.Errorf("Struct() = %v", err)
		}
	})

	t.Run("reports json field names", func(t *testing.T) {
		err := Struct(inviteArgs{MaxUses: 500, MaxAge: -1})
		if err == nil {
			t.Fatal("expected validation error")
		}
		msg := err.Error()
		for _, want := range []string{"max_uses max", "max_age min", "channel_id required"} {
			if !strings.Contains(msg, want) {
				t.Errorf("error %q does not mention %q", msg, want)
			}
		}
	})

	t.Run("nil", func(t *testing.T) {
		if err := Struct(nil); err == nil {
			t.Error("expected error for nil")
		}
	})

	t.Run("not a struct", func(t *testing.T) {
		if err := Struct(42); err == nil {
			t.Error("expected error for int")
		}
	})
}
