package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadMatchesClampModulo(t *testing.T) {
	for _, p := range []Profile{ProfileByte, ProfileDrive} {
		for i := p.Forward.Min - 20; i <= p.Forward.Max+20; i += 7 {
			for v := p.Turn.Min - 20; v <= p.Turn.Max+20; v += 11 {
				c := Controls{Forward: p.Forward.Clamp(i), Turn: p.Turn.Clamp(v)}
				got := c.Payload()
				require.Len(t, got, 2)
				wantF := byte(((p.Forward.Clamp(i) % 256) + 256) % 256)
				wantT := byte(((p.Turn.Clamp(v) % 256) + 256) % 256)
				assert.Equal(t, wantF, got[0], "profile %s forward %d", p.Name, i)
				assert.Equal(t, wantT, got[1], "profile %s turn %d", p.Name, v)
			}
		}
	}
}

func TestPayloadNarrowsNegatives(t *testing.T) {
	assert.Equal(t, []byte{0xFF, 0xA6}, Controls{Forward: -1, Turn: -90}.Payload())
	assert.Equal(t, []byte{0x9C, 0x00}, Controls{Forward: -100, Turn: 0}.Payload())
	assert.Equal(t, []byte{0x7F, 0xFF}, Controls{Forward: 127, Turn: 255}.Payload())
}

func TestRangeClamp(t *testing.T) {
	r := Range{Min: -90, Max: 90}
	assert.Equal(t, -90, r.Clamp(-500))
	assert.Equal(t, 90, r.Clamp(91))
	assert.Equal(t, 12, r.Clamp(12))
}

func TestRangeValid(t *testing.T) {
	assert.True(t, ProfileByte.Forward.Valid())
	assert.True(t, ProfileDrive.Turn.Valid())
	assert.False(t, Range{Min: 10, Max: 0}.Valid())
	assert.False(t, Range{Min: 0, Max: 10, Default: 11}.Valid())
}

func TestParseControlText(t *testing.T) {
	r := ProfileByte.Forward

	v, err := ParseControlText(r, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	for _, bad := range []string{"999", "-1", "abc", "", "4.5"} {
		_, err := ParseControlText(r, bad)
		require.Error(t, err, "input %q", bad)
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Equal(t, CodeControlInvalidInput, ErrorCodeOf(err))
	}
}

func TestParseAxis(t *testing.T) {
	a, err := ParseAxis("id")
	require.NoError(t, err)
	assert.Equal(t, AxisForward, a)

	a, err = ParseAxis("Turn")
	require.NoError(t, err)
	assert.Equal(t, AxisTurn, a)

	_, err = ParseAxis("sideways")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLookupProfile(t *testing.T) {
	p, ok := LookupProfile("DRIVE")
	require.True(t, ok)
	assert.Equal(t, ProfileDrive, p)
	assert.Equal(t, Controls{Forward: 0, Turn: 0}, p.DefaultControls())

	_, ok = LookupProfile("hover")
	assert.False(t, ok)
}

func TestControlsWithAndGet(t *testing.T) {
	c := ProfileByte.DefaultControls().With(AxisTurn, 3)
	assert.Equal(t, 127, c.Get(AxisForward))
	assert.Equal(t, 3, c.Get(AxisTurn))
	assert.Equal(t, ProfileDrive.Turn, ProfileDrive.RangeOf(AxisTurn))
}
