package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Compute([]byte("abc")))
	assert.Empty(t, Compute(nil))
	assert.Empty(t, Compute([]byte{}))
}

func TestVerify(t *testing.T) {
	t.Parallel()

	data := []byte("payload")
	sum := Compute(data)

	assert.True(t, Verify(data, sum))
	assert.False(t, Verify([]byte("tampered"), sum))
	assert.True(t, Verify([]byte("anything"), ""))
}
