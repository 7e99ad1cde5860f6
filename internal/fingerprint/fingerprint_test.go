package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXXHash64KnownValue(t *testing.T) {
	// XXH64("", seed 0)
	assert.Equal(t, uint64(0xef46db3751d8e999), XXHash64(nil))
	assert.NotEqual(t, XXHash64([]byte("a")), XXHash64([]byte("b")))
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "xxhash64", "XXH64"} {
		h, err := ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, XXHash64([]byte("page")), h([]byte("page")))
	}

	h, err := ByName("fnv1a64")
	require.NoError(t, err)
	assert.Equal(t, FNV1a64([]byte("page")), h([]byte("page")))

	_, err = ByName("md5")
	assert.Error(t, err)
}

func TestDecodeDropsPartialRecord(t *testing.T) {
	buf := Encode([]Fingerprint{1, 0xdeadbeef})
	buf = append(buf, 0x01, 0x02, 0x03)

	fps, rest := Decode(buf)
	assert.Equal(t, []Fingerprint{1, 0xdeadbeef}, fps)
	assert.Equal(t, 3, rest)
}

func TestEncodeIsLittleEndian(t *testing.T) {
	buf := Encode([]Fingerprint{0x0102030405060708})
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, buf)
}

func TestFingerprintString(t *testing.T) {
	assert.Equal(t, "00000000000000ff", Fingerprint(255).String())
}
