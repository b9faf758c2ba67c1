package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharFlags(t *testing.T) {
	f := CharWriteWithoutResponse | CharNotify
	assert.True(t, f.Writable())
	assert.False(t, f.Readable())
	assert.True(t, f.Notifiable())
	assert.Equal(t, []string{"writable", "notify"}, f.Labels())

	assert.False(t, CharRead.Writable())
	assert.True(t, CharWrite.Writable())
	assert.Empty(t, CharFlags(0).Labels())
}

func TestCharacteristicLabel(t *testing.T) {
	c := CharacteristicRecord{UUID: "ff01", Flags: CharRead | CharWrite | CharIndicate}
	assert.Equal(t, "ff01 (writable) (readable) (notify)", c.Label())
}

func TestServiceFirstWritable(t *testing.T) {
	svc := ServiceRecord{
		UUID: "ff00",
		Characteristics: []CharacteristicRecord{
			{UUID: "ff01", Flags: CharRead},
			{UUID: "ff02", Flags: CharWrite},
			{UUID: "ff03", Flags: CharWriteWithoutResponse},
		},
	}
	c, ok := svc.FirstWritable()
	assert.True(t, ok)
	assert.Equal(t, "ff02", c.UUID)

	_, ok = ServiceRecord{UUID: "180a"}.FirstWritable()
	assert.False(t, ok)
}

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "6e400001b5a3f393e0a9e50e24dcca9e", NormalizeUUID("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.Equal(t, "180a", NormalizeUUID(" {180A} "))
}
