package router

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/pkg/errors"

	"storefront/internal/apperr"
)

// bindJSON 解析请求体；类型不匹配时按出错的 JSON 字段报告，而不是笼统的 body 错误。
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindBodyWith(dst, binding.JSON)
	if err == nil {
		return nil
	}
	if field := invalidField(c, dst, err); field != "" {
		return apperr.Validation(field,
			fmt.Sprintf("The %s field is invalid.", strings.ReplaceAll(field, "_", " ")))
	}
	return errMalformedBody
}

func invalidField(c *gin.Context, dst any, err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return te.Field
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return ""
	}

	// decimal 等自定义 Unmarshaler 的错误不带字段名，逐个字段重新解码定位。
	body, _ := c.Get(gin.BodyBytesKey)
	b, ok := body.([]byte)
	if !ok {
		return ""
	}
	raw := map[string]json.RawMessage{}
	if json.Unmarshal(b, &raw) != nil {
		return ""
	}
	fields := jsonFields(reflect.TypeOf(dst))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		typ, ok := fields[k]
		if !ok {
			continue
		}
		if json.Unmarshal(raw[k], reflect.New(typ).Interface()) != nil {
			return k
		}
	}
	return ""
}

// jsonFields maps top-level JSON keys of a struct to their Go types.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]reflect.Type{}
	if t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f.Type
	}
	return out
}
