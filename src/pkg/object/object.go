// Package object 存储文件中的对象：按类的 schema 持有属性值，并负责与 JSON 之间的编解码
package object

import (
	"errors"
	"fmt"
	"math"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/shelfdb/shelf/src/pkg/schema"
)

var (
	// ErrReadOnly 对只读对象写入
	ErrReadOnly = errors.New("object is read-only")
	// ErrTypeMismatch 值与属性类型不符
	ErrTypeMismatch = errors.New("value does not match property type")
	// ErrCorrupt 持久化数据无法解析
	ErrCorrupt = errors.New("corrupt object data")
)

// NewID 生成对象ID
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Object 一个类的实例。值的 Go 类型由属性类型决定：
// Int→int64, Float→float32, Double→float64, Bool→bool, String→string,
// Date→time.Time, Data→[]byte, Object→string(目标ID)或nil, List→[]string
type Object struct {
	ID        string
	ClassName string

	cls      *schema.ObjectSchema
	values   map[string]any
	readOnly bool
}

// New 按类定义创建对象，未给出的属性取默认值
func New(cls *schema.ObjectSchema, values map[string]any) (*Object, error) {
	o := blank(cls, NewID())
	for name, v := range values {
		if err := o.Set(name, v); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func blank(cls *schema.ObjectSchema, id string) *Object {
	o := &Object{
		ID:        id,
		ClassName: cls.ClassName,
		cls:       cls,
		values:    make(map[string]any, cls.Len()),
	}
	for _, p := range cls.Properties() {
		o.values[p.Name] = Default(p)
	}
	return o
}

// Schema 对象所属类的定义
func (o *Object) Schema() *schema.ObjectSchema {
	return o.cls
}

// IsReadOnly 是否只读
func (o *Object) IsReadOnly() bool {
	return o.readOnly
}

// Get 读取属性值
func (o *Object) Get(name string) (any, error) {
	if _, ok := o.cls.Property(name); !ok {
		return nil, fmt.Errorf("%w: %s.%s", schema.ErrPropertyNotFound, o.ClassName, name)
	}
	return o.values[name], nil
}

// Set 写入属性值，值会被转换为属性类型对应的 Go 类型
func (o *Object) Set(name string, v any) error {
	if o.readOnly {
		return fmt.Errorf("%w: %s %s", ErrReadOnly, o.ClassName, o.ID)
	}
	p, ok := o.cls.Property(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", schema.ErrPropertyNotFound, o.ClassName, name)
	}
	converted, err := coerce(p, v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", o.ClassName, name, err)
	}
	o.values[name] = converted
	return nil
}

// Values 属性值的浅拷贝
func (o *Object) Values() map[string]any {
	out := make(map[string]any, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Clone 返回可写副本
func (o *Object) Clone() *Object {
	c := &Object{
		ID:        o.ID,
		ClassName: o.ClassName,
		cls:       o.cls,
		values:    make(map[string]any, len(o.values)),
	}
	for k, v := range o.values {
		c.values[k] = cloneValue(v)
	}
	return c
}

// Freeze 返回只读副本
func (o *Object) Freeze() *Object {
	c := o.Clone()
	c.readOnly = true
	return c
}

// Conform 将对象转换到新的类定义：删除的属性被丢弃，新属性取默认值，
// 类型不再匹配的值重置为默认值
func (o *Object) Conform(cls *schema.ObjectSchema) (*Object, error) {
	data, err := Encode(o)
	if err != nil {
		return nil, err
	}
	return Decode(cls, o.ID, data)
}

// Value 以指定 Go 类型读取属性值
func Value[T any](o *Object, name string) (T, error) {
	var zero T
	v, err := o.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s holds %T", ErrTypeMismatch, o.ClassName, name, v)
	}
	return t, nil
}

// Default 属性类型的默认值
func Default(p schema.Property) any {
	switch p.Type {
	case schema.TypeInt:
		return int64(0)
	case schema.TypeFloat:
		return float32(0)
	case schema.TypeDouble:
		return float64(0)
	case schema.TypeBool:
		return false
	case schema.TypeString:
		return ""
	case schema.TypeDate:
		return time.Time{}
	case schema.TypeData:
		return []byte{}
	case schema.TypeList:
		return []string{}
	default:
		return nil
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return append([]byte{}, t...)
	case []string:
		return append([]string{}, t...)
	default:
		return v
	}
}

func coerce(p schema.Property, v any) (any, error) {
	mismatch := fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, p.Type)
	switch p.Type {
	case schema.TypeInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, mismatch
		}
		return n, nil
	case schema.TypeFloat, schema.TypeDouble:
		f, ok := toFloat64(v)
		if !ok {
			return nil, mismatch
		}
		if p.Type == schema.TypeFloat {
			return float32(f), nil
		}
		return f, nil
	case schema.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch
		}
		return b, nil
	case schema.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch
		}
		return s, nil
	case schema.TypeDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch
		}
		return t.UTC(), nil
	case schema.TypeData:
		b, ok := v.([]byte)
		if !ok {
			return nil, mismatch
		}
		return append([]byte{}, b...), nil
	case schema.TypeObject:
		switch t := v.(type) {
		case nil:
			return nil, nil
		case string:
			return t, nil
		case *Object:
			if t == nil {
				return nil, nil
			}
			if t.ClassName != p.ObjectClass {
				return nil, fmt.Errorf("%w: link to %s, want %s", ErrTypeMismatch, t.ClassName, p.ObjectClass)
			}
			return t.ID, nil
		}
		return nil, mismatch
	case schema.TypeList:
		switch t := v.(type) {
		case nil:
			return []string{}, nil
		case []string:
			return append([]string{}, t...), nil
		case []*Object:
			ids := make([]string, 0, len(t))
			for _, item := range t {
				if item.ClassName != p.ObjectClass {
					return nil, fmt.Errorf("%w: link to %s, want %s", ErrTypeMismatch, item.ClassName, p.ObjectClass)
				}
				ids = append(ids, item.ID)
			}
			return ids, nil
		}
		return nil, mismatch
	}
	return nil, mismatch
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
