package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/model"
)

type Widget struct {
	ID        int64
	Name      string
	Weight    float64
	Tags      []string
	CreatedAt time.Time
}

func widgetMeta(t *testing.T) *model.Metadata {
	t.Helper()
	meta, err := model.Describe[Widget]().
		Table("widgets").
		PK("ID", model.PKNumber).
		Register()
	require.NoError(t, err)
	return meta
}

func TestPrepareRevertRoundTrip(t *testing.T) {
	meta := widgetMeta(t)
	now := time.Now().Truncate(time.Second)

	w := &Widget{ID: 42, Name: "bolt", Weight: 1.5, Tags: []string{"a", "b"}, CreatedAt: now}
	rec, id, err := Prepare(meta, w)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Equal(t, "bolt", rec["name"])
	_, hasPK := rec["id"]
	assert.False(t, hasPK, "pk never enters the record")

	back, err := Revert(meta, rec, id)
	require.NoError(t, err)
	assert.Equal(t, w, back)
}

// TestRevertBridgesJSONWidening verifies revert after a JSON round trip
// where numbers widen to float64 and times become strings.
func TestRevertBridgesJSONWidening(t *testing.T) {
	meta := widgetMeta(t)

	rec := Record{
		"name":      "wire",
		"weight":    float64(2),
		"tags":      []interface{}{"x", "y"},
		"createdAt": "2024-05-01T10:00:00Z",
	}
	back, err := Revert(meta, rec, "7")
	require.NoError(t, err)

	w := back.(*Widget)
	assert.Equal(t, int64(7), w.ID)
	assert.Equal(t, float64(2), w.Weight)
	assert.Equal(t, []string{"x", "y"}, w.Tags)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), w.CreatedAt)
}

func TestSerialiseID(t *testing.T) {
	tests := []struct {
		name string
		kind model.PKKind
		in   interface{}
		want string
	}{
		{"number", model.PKNumber, int64(5), "5"},
		{"serial pads to 14", model.PKSerial, 123, "00000000000123"},
		{"string", model.PKString, "abc", "abc"},
		{"uuid", model.PKUUID, "6e9f0b5e", "6e9f0b5e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SerialiseID(tt.kind, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SerialiseID(model.PKNumber, "not-a-number")
	assert.Error(t, err)
}

func TestFlagsStampFreshUUID(t *testing.T) {
	a := NewFlags(model.OpCreate, "widgets", map[string]interface{}{"k": "v"})
	b := NewFlags(model.OpCreate, "widgets", nil)

	assert.NotEmpty(t, a.UUID)
	assert.NotEqual(t, a.UUID, b.UUID)
	assert.Equal(t, model.OpCreate, a.Operation)
	assert.Equal(t, "v", a.Extra["k"])
	assert.False(t, a.Timestamp.IsZero())
}

func TestRegistryFlavourResolution(t *testing.T) {
	// the registry rejects unknown flavours
	_, err := Get("no-such-flavour")
	assert.Error(t, err)
	assert.Error(t, SetCurrent("no-such-flavour"))
}
