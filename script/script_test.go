package script

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikesmitty/mv2"
)

const digitalScript = `<script>
  <command>
    <type>2C</type>
    <value>00</value>
  </command>
  <command>
    <type>41</type>
  </command>
  <command>
    <type>2C</type>
    <value>00</value>
  </command>
  <command>
    <type>2C</type>
    <value>00</value>
  </command>
</script>
`

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		r       mv2.Register
		hex     string
		decimal string
	}{
		{0, "00", "00"},
		{6, "06", "06"},
		{0x32, "32", "50"},
		{255, "FF", "55"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.hex, FormatHex(tc.r))
		assert.Equal(t, tc.decimal, FormatDecimal(tc.r))
		assert.Equal(t, tc.hex, Format(tc.r, Hex))
		assert.Equal(t, tc.decimal, Format(tc.r, Decimal))
	}
}

func TestParseRadix(t *testing.T) {
	t.Parallel()

	r, err := ParseRadix("")
	require.NoError(t, err)
	assert.Equal(t, Hex, r)

	r, err = ParseRadix("Decimal")
	require.NoError(t, err)
	assert.Equal(t, Decimal, r)

	_, err = ParseRadix("octal")
	assert.Error(t, err)
}

func TestSubstitute_Ordered(t *testing.T) {
	t.Parallel()

	lines := SplitLines(digitalScript)
	err := Substitute(lines, []Substitution{
		{Type: "2C", Value: "30"},
		{Type: "2C", Value: "31"},
	})
	require.NoError(t, err)

	got := strings.Join(lines, "")
	want := strings.Replace(digitalScript, "<value>00</value>", "<value>30</value>", 1)
	want = strings.Replace(want, "<value>00</value>", "<value>31</value>", 1)
	if diff := cmp.Diff(strings.TrimSuffix(want, "\n"), got); diff != "" {
		t.Fatalf("Substitute mismatch (-want +got):\n%s", diff)
	}
}

func TestSubstitute_Unmatched(t *testing.T) {
	t.Parallel()

	lines := SplitLines(digitalScript)
	err := Substitute(lines, []Substitution{
		{Type: "2C", Value: "01"},
		{Type: "2C", Value: "02"},
		{Type: "2C", Value: "03"},
		{Type: "2C", Value: "04"},
		{Type: "2D", Value: "05"},
	})

	var unmatched *UnmatchedError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, []string{"2C", "2D"}, unmatched.Types)
}

func TestSubstitute_NoValueLine(t *testing.T) {
	t.Parallel()

	lines := []string{"<command>\n", "<type>2C</type>"}
	err := Substitute(lines, []Substitution{{Type: "2C", Value: "FF"}})
	assert.True(t, errors.Is(err, ErrNoValueLine))
}

func TestSubstitute_TypeIsLiteral(t *testing.T) {
	t.Parallel()

	lines := []string{"<type>2X</type>\n", "<value>00</value>\n"}
	err := Substitute(lines, []Substitution{{Type: "2.", Value: "FF"}})
	require.Error(t, err)
	assert.Equal(t, "<value>00</value>\n", lines[1])
}

func TestSubstituteAll(t *testing.T) {
	t.Parallel()

	lines := SplitLines(digitalScript)
	require.NoError(t, SubstituteAll(lines, map[string]string{"2C": "fish"}))
	got := strings.Join(lines, "")
	assert.Equal(t, 3, strings.Count(got, "<value>fish</value>"))
	assert.NotContains(t, got, "<value>00</value>")

	err := SubstituteAll(SplitLines(digitalScript), map[string]string{"2C": "01", "2E": "02", "1C": "03"})
	var unmatched *UnmatchedError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, []string{"1C", "2E"}, unmatched.Types)
}

func TestRewriteFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	src := filepath.Join(dir, "MV2DigitalScript.xml")
	dst := filepath.Join(dir, "MV2DigitalScript_temp.xml")
	require.NoError(t, os.WriteFile(src, []byte(digitalScript), 0o644))

	// --- Act ---
	err := RewriteFile(src, dst, func(lines []string) error {
		return Substitute(lines, []Substitution{{Type: "2C", Value: "32"}})
	})

	// --- Assert ---
	require.NoError(t, err)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(digitalScript, "<value>00</value>", "<value>32</value>", 1), string(b))

	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, digitalScript, string(orig), "source must be left untouched")
}

func TestRewriteFile_MissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := RewriteFile(filepath.Join(dir, "missing.xml"), filepath.Join(dir, "out.xml"), func([]string) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
