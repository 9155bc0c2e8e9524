package schemas

import (
	"errors"
	"testing"

	schemafiles "github.com/jonathan/longform-writer/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	err := Validate(schemafiles.SeparatedKeywords, `{"conclusionKeywords":["burr grinder"],"trafficKeywords":["espresso grind"]}`)
	assert.NoError(t, err)
}

func TestValidate_MissingField(t *testing.T) {
	err := Validate(schemafiles.SeparatedKeywords, `{"conclusionKeywords":["burr grinder"]}`)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schemafiles.SeparatedKeywords, verr.Schema)
	assert.NotEmpty(t, verr.Errors)
	assert.Contains(t, err.Error(), "trafficKeywords")
}

func TestValidate_MetaTitleTooLong(t *testing.T) {
	long := `{"title":"This title is definitely far too long to be used as a page title in search",` +
		`"description":"d","ogTitle":"o","ogDescription":"od"}`

	err := Validate(schemafiles.MetaInfo, long)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Errors[0].Field)
}

func TestValidate_FAQBounds(t *testing.T) {
	one := `{"faq":[{"question":"q","answer":"a"}]}`
	assert.Error(t, Validate(schemafiles.FAQ, one))

	two := `{"faq":[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2"}]}`
	assert.NoError(t, Validate(schemafiles.FAQ, two))
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(schemafiles.FAQ, `{"faq": [`)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "(root)", verr.Errors[0].Field)
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("job_profile", `{}`)
	var lerr *SchemaLoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "job_profile", lerr.Path)
}

func TestDecode(t *testing.T) {
	var out struct {
		Queries []string `json:"queries"`
	}
	require.NoError(t, Decode(schemafiles.SearchQueries, `{"queries":["a","b"]}`, &out))
	assert.Equal(t, []string{"a", "b"}, out.Queries)

	assert.Error(t, Decode(schemafiles.SearchQueries, `{"queries":[]}`, &out))
}

func TestValidateJSONString_Valid(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`
	assert.NoError(t, ValidateJSONString(schema, `{"name":"x"}`))
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`
	err := ValidateJSONString(schema, `{"name":5}`)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Errors[0].Field)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{{Field: "a", Message: "is required"}, {Field: "b", Message: "bad"}}}
	msg := err.Error()
	assert.Contains(t, msg, "validation failed")
	assert.Contains(t, msg, "1. a: is required")
	assert.Contains(t, msg, "2. b: bad")
}
