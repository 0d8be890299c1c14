package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	a := Compute("gmail__send_email", "Send an email message")
	b := Compute("gmail__send_email", "Send an email message")

	assert.Equal(t, a, b)
	assert.Len(t, a, Size*2)
	assert.True(t, Valid(a))
}

func TestComputeTrimsOuterWhitespace(t *testing.T) {
	assert.Equal(t,
		Compute("calendar__create_event", "Create an event"),
		Compute("  calendar__create_event", "Create an event\n"),
	)
}

func TestComputeDistinguishesText(t *testing.T) {
	tests := []struct {
		name      string
		a, b      [2]string
		wantEqual bool
	}{
		{name: "different description", a: [2]string{"t", "one"}, b: [2]string{"t", "two"}},
		{name: "different name", a: [2]string{"a", "desc"}, b: [2]string{"b", "desc"}},
		// The boundary between name and description is not part of the input.
		{name: "shifted boundary", a: [2]string{"ab", "c"}, b: [2]string{"a", "bc"}, wantEqual: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.a[0], tt.a[1]) == Compute(tt.b[0], tt.b[1])
			require.Equal(t, tt.wantEqual, got)
		})
	}
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("xyz"))
	assert.False(t, Valid("0123456789ABCDEF0123456789ABCDEF"))
	assert.True(t, Valid("0123456789abcdef0123456789abcdef"))
}
