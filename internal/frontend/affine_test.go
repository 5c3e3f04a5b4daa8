package frontend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAffine(t *testing.T) {
	tests := map[string]string{
		"d0":                   "d0",
		"42":                   "42",
		"-3":                   "-3",
		"d0 * 16 + d1":         "((d0 * 16) + d1)",
		"d0 - 2":               "(d0 + -2)",
		"-d1":                  "(d1 * -1)",
		"d0 - d1":              "(d0 + (d1 * -1))",
		"(d0 + 1) ceildiv 8":   "((d0 + 1) ceildiv 8)",
		"d0 floordiv 4 mod 2":  "((d0 floordiv 4) mod 2)",
		"d2 + d1 * (d0 mod 4)": "(d2 + (d1 * (d0 mod 4)))",
		"  d0*2+1 ":            "((d0 * 2) + 1)",
	}
	for src, want := range tests {
		e, err := ParseAffine(src)
		require.NoError(t, err, src)
		require.Equal(t, want, e.String(), src)
	}
}

func TestParseAffineErrors(t *testing.T) {
	for _, src := range []string{"", "   ", "d0 +", "(d0", "d0 ^ 2", "dx", "d0 d1", "d0 * )"} {
		_, err := ParseAffine(src)
		require.Error(t, err, "%q", src)
	}
}
