package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashData(t *testing.T) {
	a := HashData([]byte("block"))
	assert.Equal(t, a, HashData([]byte("block")))
	assert.NotEqual(t, a, HashData([]byte("block2")))
	// blake2b-256 of the empty input
	assert.Equal(t, "0x0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", HashData(nil).String())
}
