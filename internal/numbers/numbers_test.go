package numbers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFloat(t *testing.T) {
	v, err := ExtractFloat("1000000000")
	assert.NoError(t, err)
	assert.Equal(t, float64(1000000000), v)

	v, err = ExtractFloat(json.Number("42.5"))
	assert.NoError(t, err)
	assert.Equal(t, 42.5, v)

	_, err = ExtractFloat("not-a-number")
	assert.Error(t, err)

	_, err = ExtractFloat("")
	assert.Error(t, err)

	_, err = ExtractFloat(struct{}{})
	assert.Error(t, err)
}

func TestExtractInt(t *testing.T) {
	v, err := ExtractInt(int64(-50000000))
	assert.NoError(t, err)
	assert.Equal(t, int64(-50000000), v)

	v, err = ExtractInt(float64(12))
	assert.NoError(t, err)
	assert.Equal(t, int64(12), v)

	_, err = ExtractInt("nope")
	assert.Error(t, err)
}
