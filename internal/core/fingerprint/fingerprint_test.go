package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_KnownVectors(t *testing.T) {
	f, err := New("sha224")
	require.NoError(t, err)
	assert.Equal(t, "d14a028c2a3a2bc9476102bb288234c415a2b01f828ea62ac5b3e42f", f.Sum(nil))
	assert.Equal(t, "23097d223405d8228642a477bda255b32aadbce4bda0b3f7e36c9da7", f.Sum([]byte("abc")))

	f3, err := New("SHA3-224")
	require.NoError(t, err)
	assert.Equal(t, "6b4e03423667dbb73b6e15454f0eb1abd4597f9a1b078e3f5b5a6bc7", f3.Sum(nil))
}

func TestSum_IdenticalBytesIdenticalDigest(t *testing.T) {
	f, _ := New("")
	a := []byte("the same document body")
	b := append([]byte(nil), a...)
	assert.Equal(t, f.Sum(a), f.Sum(b))
	assert.Len(t, f.Sum(a), 56)
}

func TestSum_SingleBitFlipChangesDigest(t *testing.T) {
	for _, algo := range []string{"sha224", "sha3-224"} {
		f, err := New(algo)
		require.NoError(t, err)

		body := []byte("quarterly results, unaudited")
		base := f.Sum(body)
		for i := range body {
			for bit := 0; bit < 8; bit++ {
				flipped := append([]byte(nil), body...)
				flipped[i] ^= 1 << bit
				assert.NotEqual(t, base, f.Sum(flipped), "%s byte %d bit %d", algo, i, bit)
			}
		}
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("md5")
	assert.Error(t, err)
}
