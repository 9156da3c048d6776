package normalize

import "testing"

func TestKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"accented mixed case", "Ñuñoa", "NUNOA"},
		{"already canonical", "NUNOA", "NUNOA"},
		{"padded", " nuñoa ", "NUNOA"},
		{"inner whitespace", "La   Florida\t", "LA FLORIDA"},
		{"punctuation", "Av. Libertador B. O'Higgins", "AV LIBERTADOR B OHIGGINS"},
		{"apostrophe dropped", "O'Higgins", "OHIGGINS"},
		{"hyphen dropped", "Pasaje 5-A", "PASAJE 5A"},
		{"digits kept", "Calle 5 Norte", "CALLE 5 NORTE"},
		{"acute accents", "Concepción", "CONCEPCION"},
		{"empty", "", ""},
		{"only symbols", "--", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Key(tc.input); got != tc.want {
				t.Errorf("Key(%q) = %q; want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestKeyEquivalentSpellings(t *testing.T) {
	t.Parallel()

	inputs := []string{"Ñuñoa", "NUNOA", " nuñoa "}
	want := Key(inputs[0])
	for _, in := range inputs[1:] {
		if got := Key(in); got != want {
			t.Fatalf("Key(%q) = %q; want %q", in, got, want)
		}
	}
}

func FuzzKey(f *testing.F) {
	for _, seed := range []string{"Ñuñoa", "La Florida", "  ", "Av. 21 de Mayo"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Key(in)
		if twice := Key(once); twice != once {
			t.Errorf("Key not idempotent: Key(%q) = %q, Key(%q) = %q", in, once, once, twice)
		}
	})
}
