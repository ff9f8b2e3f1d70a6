// Package schema 描述存储文件中的类与属性定义，并提供结构化比较
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Version 存储文件的 schema 版本号，对同一个文件只增不减
type Version = uint64

var (
	// ErrClassNotFound 类不存在
	ErrClassNotFound = errors.New("class not found")
	// ErrPropertyNotFound 属性不存在
	ErrPropertyNotFound = errors.New("property not found")
	// ErrInvalidSchema schema 定义不合法
	ErrInvalidSchema = errors.New("invalid schema")
)

// PropertyType 属性类型（封闭枚举）
type PropertyType int

const (
	// TypeInvalid 零值，表示未设置
	TypeInvalid PropertyType = iota
	TypeInt
	TypeFloat
	TypeDouble
	TypeBool
	TypeString
	TypeDate
	TypeData
	// TypeObject 指向另一个类的单个对象
	TypeObject
	// TypeList 指向另一个类的对象列表
	TypeList
)

var propertyTypeNames = map[PropertyType]string{
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeDouble: "double",
	TypeBool:   "bool",
	TypeString: "string",
	TypeDate:   "date",
	TypeData:   "data",
	TypeObject: "object",
	TypeList:   "list",
}

// String 返回类型的小写名称，与持久化表中的取值一致
func (t PropertyType) String() string {
	if name, ok := propertyTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", int(t))
}

// IsValid 判断类型是否属于枚举范围
func (t PropertyType) IsValid() bool {
	_, ok := propertyTypeNames[t]
	return ok
}

// IsLink 判断是否为链接类型（需要 ObjectClass）
func (t PropertyType) IsLink() bool {
	return t == TypeObject || t == TypeList
}

// ParsePropertyType 从名称解析属性类型，大小写不敏感
func ParsePropertyType(name string) (PropertyType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range propertyTypeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("%w: unknown property type %q", ErrInvalidSchema, name)
}

// UnmarshalYAML 支持在 YAML 中以名称书写类型
func (t *PropertyType) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParsePropertyType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML 以名称输出类型
func (t PropertyType) MarshalYAML() (any, error) {
	return t.String(), nil
}
