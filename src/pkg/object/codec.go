package object

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shelfdb/shelf/src/pkg/schema"
)

// Encode 将对象编码为 JSON 文档，键为属性名
func Encode(o *Object) ([]byte, error) {
	doc := make(map[string]any, len(o.values))
	for name, v := range o.values {
		if t, ok := v.(time.Time); ok {
			doc[name] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		doc[name] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", o.ClassName, o.ID, err)
	}
	return b, nil
}

// Decode 按类定义解析 JSON 文档。缺失的属性取默认值；
// JSON 类型与属性类型不符的值同样取默认值，文档中多余的键被忽略
func Decode(cls *schema.ObjectSchema, id string, data []byte) (*Object, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s %s", ErrCorrupt, cls.ClassName, id)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: %s %s is not a JSON object", ErrCorrupt, cls.ClassName, id)
	}

	o := blank(cls, id)
	for _, p := range cls.Properties() {
		if v, ok := decodeValue(p, doc.Get(p.Name)); ok {
			o.values[p.Name] = v
		}
	}
	return o, nil
}

func decodeValue(p schema.Property, r gjson.Result) (any, bool) {
	if !r.Exists() {
		return nil, false
	}
	switch p.Type {
	case schema.TypeInt:
		// 带小数部分的数字不截断，按类型不符处理
		if r.Type == gjson.Number && isIntegral(r) {
			return r.Int(), true
		}
	case schema.TypeFloat:
		if r.Type == gjson.Number {
			return float32(r.Float()), true
		}
	case schema.TypeDouble:
		if r.Type == gjson.Number {
			return r.Float(), true
		}
	case schema.TypeBool:
		if r.Type == gjson.True || r.Type == gjson.False {
			return r.Bool(), true
		}
	case schema.TypeString:
		if r.Type == gjson.String {
			return r.Str, true
		}
	case schema.TypeDate:
		if r.Type == gjson.String {
			if t, err := time.Parse(time.RFC3339Nano, r.Str); err == nil {
				return t.UTC(), true
			}
		}
	case schema.TypeData:
		if r.Type == gjson.String {
			if b, err := base64.StdEncoding.DecodeString(r.Str); err == nil {
				return b, true
			}
		}
	case schema.TypeObject:
		switch r.Type {
		case gjson.Null:
			return nil, true
		case gjson.String:
			return r.Str, true
		}
	case schema.TypeList:
		if !r.IsArray() {
			return nil, false
		}
		ids := []string{}
		valid := true
		r.ForEach(func(_, item gjson.Result) bool {
			if item.Type != gjson.String {
				valid = false
				return false
			}
			ids = append(ids, item.Str)
			return true
		})
		if valid {
			return ids, true
		}
	}
	return nil, false
}

func isIntegral(r gjson.Result) bool {
	if !strings.ContainsAny(r.Raw, ".eE") {
		return true
	}
	return r.Num == math.Trunc(r.Num) && math.Abs(r.Num) < math.MaxInt64
}
