package firewall

import "testing"

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		entry   string
		wantErr bool
	}{
		{"140.82.112.0/20", false},
		{"192.30.252.0/22", false},
		{"160.79.104.10", false},
		{"10.0.0.0/8", false},
		{"2606:50c0::/32", true},
		{"not-an-address", true},
		{"140.82.112.0/20 -j ACCEPT", true},
		{"", true},
		{"1.2.3", true},
		{"1.2.3.4/201", true},
	}
	for _, tt := range tests {
		err := ValidateEntry(tt.entry)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateEntry(%q) error = %v, wantErr %v", tt.entry, err, tt.wantErr)
		}
	}
}

func TestAddressSetDedup(t *testing.T) {
	s := NewAddressSet()
	for _, e := range []string{"1.2.3.4", "5.6.7.0/24", "1.2.3.4"} {
		if err := s.Add(e); err != nil {
			t.Fatalf("Add(%q): %v", e, err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	got := s.Entries()
	if got[0] != "1.2.3.4" || got[1] != "5.6.7.0/24" {
		t.Errorf("Entries() = %v, insertion order not preserved", got)
	}
}

func TestAddressSetRejectsInvalid(t *testing.T) {
	s := NewAddressSet()
	if err := s.Add("bogus"); err == nil {
		t.Error("Add(bogus) should fail")
	}
	if s.Len() != 0 {
		t.Errorf("invalid entry was admitted, Len() = %d", s.Len())
	}
}
