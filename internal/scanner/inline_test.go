package scanner

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/urlvet/internal/config"
)

// vocabularyWatches returns the watch list of the default vocabulary.
func vocabularyWatches() []Watch {
	calls := config.DefaultVocabulary().ScriptCalls
	watches := make([]Watch, 0, len(calls))
	for _, call := range calls {
		anchor := AnchorCall
		if call.Member {
			anchor = AnchorMember
		}
		watches = append(watches, Watch{Name: call.Name, Anchor: anchor})
	}
	return watches
}

func TestCallScannerScan(t *testing.T) {
	t.Parallel()

	s := NewCallScanner(vocabularyWatches())

	testCases := []struct {
		name        string
		soup        string
		want        map[string]int
		autoSubmits int
	}{
		{
			name: "eval of atob",
			soup: `eval(atob("ZG9jdW1lbnQ="))`,
			want: map[string]int{"eval": 1, "atob": 1},
		},
		{
			name: "case and whitespace before paren",
			soup: "EVAL (x); Atob\t(y)",
			want: map[string]int{"eval": 1, "atob": 1},
		},
		{
			name: "identifier boundary",
			soup: "medieval(x); myatob(y); prefetch(z)",
			want: map[string]int{},
		},
		{
			name: "dotted calls",
			soup: `window.open("x"); document.write("<p>"); top.location.replace("/a")`,
			want: map[string]int{"window.open": 1, "document.write": 1, "location.replace": 1},
		},
		{
			name: "bracket eval",
			soup: `window["eval"]("1+1")`,
			want: map[string]int{`window["eval"]`: 1},
		},
		{
			name: "members",
			soup: `var c = document.cookie; localStorage.setItem("k", c); el.innerHTML = c; window.location.href = "/x"; a.cookieJar; mydocument.cookie`,
			want: map[string]int{"document.cookie": 1, ".setItem": 1, ".innerHTML": 1, "location.href": 1},
		},
		{
			name:        "silent auto submit",
			soup:        `document.getElementById("f").submit();`,
			want:        map[string]int{},
			autoSubmits: 1,
		},
		{
			name: "submit too far away",
			soup: `document.getElementById("a-very-long-form-identifier-here").submit();`,
			want: map[string]int{},
		},
		{
			name: "empty soup",
			soup: "",
			want: map[string]int{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			report := s.Scan([]byte(tc.soup))
			if diff := cmp.Diff(tc.want, report.Counts()); diff != "" {
				t.Errorf("counts mismatch (-want +got):\n%s", diff)
			}
			if len(report.AutoSubmits) != tc.autoSubmits {
				t.Errorf("auto submits = %d, want %d", len(report.AutoSubmits), tc.autoSubmits)
			}
		})
	}
}

func TestCallScannerWatchedAutoSubmitCall(t *testing.T) {
	t.Parallel()

	s := NewCallScanner([]Watch{{Name: "getElementById", Anchor: AnchorCall}})
	report := s.Scan([]byte(`document.getElementById("f").submit()`))
	if report.Counts()["getElementById"] != 1 {
		t.Errorf("watched getElementById not reported: %+v", report.Matches)
	}
	if len(report.AutoSubmits) != 1 {
		t.Errorf("auto submit not detected")
	}
}

func TestCallScannerIgnoresShortNames(t *testing.T) {
	t.Parallel()

	s := NewCallScanner([]Watch{{Name: "x", Anchor: AnchorCall}, {Name: "a.b", Anchor: AnchorMember}})
	if got := s.Scan([]byte("x(1); a.b")); len(got.Matches) != 0 {
		t.Errorf("expected no matches, got %+v", got.Matches)
	}
}

// soupAlphabet biases random input toward bytes that form watched names.
const soupAlphabet = "evalatobfhcwindopmuskrgyIEBA.()[]\"' \n;=_$"

func randomSoup(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = soupAlphabet[rng.Intn(len(soupAlphabet))]
	}
	return b
}

// TestStagedScanMatchesNaive compares the prefiltered scan against the naive
// scan on random input seeded with real call sites.
func TestStagedScanMatchesNaive(t *testing.T) {
	t.Parallel()

	s := NewCallScanner(vocabularyWatches())
	rng := rand.New(rand.NewSource(7))
	fragments := []string{"eval(", "atob (", `window["eval"](`, "document.cookie", ".setItem(", "getElementById(x).submit(", "window.open("}

	for round := 0; round < 500; round++ {
		soup := randomSoup(rng, rng.Intn(400))
		for k := rng.Intn(4); k > 0; k-- {
			pos := rng.Intn(len(soup) + 1)
			frag := fragments[rng.Intn(len(fragments))]
			soup = append(soup[:pos], append([]byte(frag), soup[pos:]...)...)
		}

		staged := s.Scan(soup)
		naive := s.ScanNaive(soup)
		if diff := cmp.Diff(naive, staged); diff != "" {
			t.Fatalf("round %d: staged scan differs from naive (-naive +staged):\n%s\nsoup: %q", round, diff, soup)
		}
	}
}

func FuzzStagedScanMatchesNaive(f *testing.F) {
	f.Add([]byte(`eval(atob("x"))`))
	f.Add([]byte(`document.getElementById("f").submit()`))
	f.Add([]byte(`a.cookie; document . cookie; window['eval']()`))

	s := NewCallScanner(vocabularyWatches())
	f.Fuzz(func(t *testing.T, soup []byte) {
		staged := s.Scan(soup)
		naive := s.ScanNaive(soup)
		if diff := cmp.Diff(naive, staged); diff != "" {
			t.Fatalf("staged scan differs from naive:\n%s", diff)
		}
	})
}
