package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/gin-gonic/gin"
)

// fieldSource yields raw request fields. present is false when the key was
// not sent; a JSON null or an empty form value yields ("", true).
type fieldSource interface {
	lookup(key string) (value string, present bool)
}

type formFields struct {
	c *gin.Context
}

func (f formFields) lookup(key string) (string, bool) {
	return f.c.GetPostForm(key)
}

// jsonFields keeps the raw value of every top-level key of a JSON object.
type jsonFields map[string]json.RawMessage

func decodeJSONFields(c *gin.Context) (jsonFields, error) {
	f := jsonFields{}
	if c.Request.Body == nil {
		return f, nil
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return f, nil
}

func (f jsonFields) lookup(key string) (string, bool) {
	raw, ok := f[key]
	if !ok {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// nullable reports the field as absent, set to null, or set to a value.
// Both "" and "null" mean null, as query strings and forms cannot carry a
// real null.
func nullable(src fieldSource, key string) (value *string, present bool) {
	v, ok := src.lookup(key)
	if !ok {
		return nil, false
	}
	if v == "" || v == "null" {
		return nil, true
	}
	return &v, true
}

func optionalString(src fieldSource, key string) *string {
	v, ok := src.lookup(key)
	if !ok {
		return nil
	}
	return &v
}

func optionalPK(src fieldSource, v *common.ValidationError, key string) (*int64, bool) {
	raw, ok := nullable(src, key)
	if !ok || raw == nil {
		return nil, ok
	}
	id, err := strconv.ParseInt(*raw, 10, 64)
	if err != nil {
		v.Add(key, "Incorrect type. Expected pk value, received str.")
		return nil, true
	}
	return &id, true
}

func optionalBool(src fieldSource, v *common.ValidationError, key string) *bool {
	raw, ok := src.lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		v.Add(key, "Must be a valid boolean.")
		return nil
	}
	return &b
}

func optionalTime(src fieldSource, v *common.ValidationError, key string) *time.Time {
	raw, ok := nullable(src, key)
	if !ok || raw == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		v.Add(key, "Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z].")
		return nil
	}
	return &t
}
