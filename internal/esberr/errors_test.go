package esberr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "presentation", KindPresentation.String())
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "send", KindSend.String())
	assert.Equal(t, "unknown_bus_id", KindUnknownBus.String())
	assert.Equal(t, "service_error", KindService.String())
	assert.Equal(t, "unexpected_server_response", KindUnexpectedServerResponse.String())
}

func TestSendErrorCarriesAddresses(t *testing.T) {
	underlying := errors.New("boom")
	err := Send[string]("A", "B", underlying)
	assert.Equal(t, KindSend, err.Kind)
	assert.Equal(t, "A", err.Src)
	assert.Equal(t, "B", err.Dst)
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
}

func TestUnknownBusError(t *testing.T) {
	err := UnknownBus[[]byte]("Y")
	assert.Equal(t, KindUnknownBus, err.Kind)
	assert.Contains(t, err.Error(), "Y")
}

func TestUnwrapReturnsCause(t *testing.T) {
	underlying := errors.New("decode failed")
	err := Presentation[[]byte](underlying)
	assert.Equal(t, underlying, errors.Unwrap(err))
}
