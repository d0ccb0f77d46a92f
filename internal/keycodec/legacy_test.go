package keycodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cskeys/internal/hashcodec"
)

func TestLegacyCodecEncode(t *testing.T) {
	codec := LegacyCodec{Secret: testSecret, Hash: hashcodec.AlgorithmSHA256}

	code := codec.Encode(1705276800, 12345)
	assert.True(t, codec.Matches(code), "encoded legacy code should match: %s", code)

	// The three segments are consecutive slices of the uppercased digest
	hash := strings.ToUpper(hashcodec.AlgorithmSHA256.Digest("1705276800_12345_" + testSecret))
	expected := "CS-" + hash[0:4] + "-" + hash[4:8] + "-" + hash[8:12]
	assert.Equal(t, expected, code)
}

func TestLegacyCodecDeterminism(t *testing.T) {
	codec := LegacyCodec{Secret: testSecret, Hash: hashcodec.AlgorithmSHA256}

	a := codec.Encode(1705276800, 12345)
	b := codec.Encode(1705276800, 12345)
	assert.Equal(t, a, b)

	c := codec.Encode(1705276800, 54321)
	assert.NotEqual(t, a, c, "different random components must give different codes")

	d := codec.Encode(1705276801, 12345)
	assert.NotEqual(t, a, d, "different timestamps must give different codes")
}

func TestLegacyCodecMatches(t *testing.T) {
	codec := LegacyCodec{Secret: testSecret, Hash: hashcodec.AlgorithmSHA256}

	tests := []struct {
		code string
		want bool
	}{
		{"CS-AB12-CD34-EF56", true},
		{"CS-0000-0000-0000", true},
		{"CS-FREE-20240115-ABCD1234", false},
		{"CS-ab12-cd34-ef56", false},
		{"CS-AB12-CD34", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codec.Matches(tt.code), "code %q", tt.code)
	}
}

func TestCodecFormats(t *testing.T) {
	dated := DatedCodec{Secret: testSecret, Hash: hashcodec.AlgorithmSHA256}
	legacy := LegacyCodec{Secret: testSecret, Hash: hashcodec.AlgorithmSHA256}

	require.Equal(t, FormatDated, dated.Format())
	require.Equal(t, FormatLegacy, legacy.Format())
	assert.Equal(t, "dated", dated.Format().String())
	assert.Equal(t, "legacy", legacy.Format().String())

	// A dated code must not shape-match the legacy codec and vice versa
	datedCode := dated.Encode(KeyTypeFree, "20240115", DeriveSeed("20240115"))
	legacyCode := legacy.Encode(1705276800, 12345)
	assert.False(t, legacy.Matches(datedCode))
	assert.False(t, dated.Matches(legacyCode))
}
