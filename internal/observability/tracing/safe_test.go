package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPII(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/donations/:id"),
		attribute.String("donor.email", "jane@example.com"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorMasksEmail(t *testing.T) {
	err := SafeError(errors.New("donor jane@example.com not found"))
	assert.EqualError(t, err, "donor ***@example.com not found")
	assert.Nil(t, SafeError(nil))
}
