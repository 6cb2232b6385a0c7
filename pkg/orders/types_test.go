package orders

import (
	"encoding/json"
	"testing"
)

func TestMoney_PreservesUpstreamForm(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing zero kept", `"149.90"`, "149.90"},
		{"plain value", `"409.94"`, "409.94"},
		{"bare number", `149.5`, "149.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Money
			if err := json.Unmarshal([]byte(tt.in), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.String() != tt.want {
				t.Errorf("String() = %q, want %q", m.String(), tt.want)
			}

			out, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != `"`+tt.want+`"` {
				t.Errorf("marshal = %s, want %q", out, tt.want)
			}
		})
	}
}

func TestMoney_RejectsGarbage(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`"12,90"`), &m); err == nil {
		t.Error("expected error for non-decimal money value")
	}
}
