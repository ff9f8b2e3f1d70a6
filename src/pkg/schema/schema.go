package schema

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Property 类中的一个属性定义
type Property struct {
	Name string
	Type PropertyType
	// ObjectClass 链接类型指向的类名，非链接类型必须为空
	ObjectClass string
	Indexed     bool
}

// Equal 结构化比较：名称、类型、链接目标、索引标记
func (p Property) Equal(other Property) bool {
	return p.Name == other.Name &&
		p.Type == other.Type &&
		p.ObjectClass == other.ObjectClass &&
		p.Indexed == other.Indexed
}

func (p Property) String() string {
	if p.Type.IsLink() {
		return fmt.Sprintf("%s: %s<%s>", p.Name, p.Type, p.ObjectClass)
	}
	return fmt.Sprintf("%s: %s", p.Name, p.Type)
}

func (p Property) validate(className string) error {
	if !identifierPattern.MatchString(p.Name) {
		return fmt.Errorf("%w: %s has invalid property name %q", ErrInvalidSchema, className, p.Name)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: %s.%s has invalid type", ErrInvalidSchema, className, p.Name)
	}
	if p.Type.IsLink() && p.ObjectClass == "" {
		return fmt.Errorf("%w: %s.%s is a link without object class", ErrInvalidSchema, className, p.Name)
	}
	if !p.Type.IsLink() && p.ObjectClass != "" {
		return fmt.Errorf("%w: %s.%s is not a link but names object class %q", ErrInvalidSchema, className, p.Name, p.ObjectClass)
	}
	return nil
}

// ObjectSchema 一个类的定义，属性保持声明顺序
type ObjectSchema struct {
	ClassName  string
	properties []Property
	index      map[string]int
}

// NewObjectSchema 校验并创建类定义
func NewObjectSchema(className string, properties ...Property) (*ObjectSchema, error) {
	if !identifierPattern.MatchString(className) {
		return nil, fmt.Errorf("%w: invalid class name %q", ErrInvalidSchema, className)
	}
	cls := &ObjectSchema{
		ClassName:  className,
		properties: make([]Property, 0, len(properties)),
		index:      make(map[string]int, len(properties)),
	}
	for _, p := range properties {
		if err := p.validate(className); err != nil {
			return nil, err
		}
		if _, dup := cls.index[p.Name]; dup {
			return nil, fmt.Errorf("%w: %s declares property %q twice", ErrInvalidSchema, className, p.Name)
		}
		cls.index[p.Name] = len(cls.properties)
		cls.properties = append(cls.properties, p)
	}
	return cls, nil
}

// Property 按名称查找属性
func (s *ObjectSchema) Property(name string) (Property, bool) {
	i, ok := s.index[name]
	if !ok {
		return Property{}, false
	}
	return s.properties[i], true
}

// Properties 返回属性副本，顺序与声明一致
func (s *ObjectSchema) Properties() []Property {
	out := make([]Property, len(s.properties))
	copy(out, s.properties)
	return out
}

// Len 属性数量
func (s *ObjectSchema) Len() int {
	return len(s.properties)
}

// Equal 结构化比较，不考虑属性顺序
func (s *ObjectSchema) Equal(other *ObjectSchema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.ClassName != other.ClassName || len(s.properties) != len(other.properties) {
		return false
	}
	for _, p := range s.properties {
		q, ok := other.Property(p.Name)
		if !ok || !p.Equal(q) {
			return false
		}
	}
	return true
}

// Catalog 按类名索引的只读 schema 快照
type Catalog struct {
	classes map[string]*ObjectSchema
	order   []string
}

// NewCatalog 由类定义创建目录，并校验链接目标
func NewCatalog(classes ...*ObjectSchema) (*Catalog, error) {
	c := &Catalog{
		classes: make(map[string]*ObjectSchema, len(classes)),
		order:   make([]string, 0, len(classes)),
	}
	for _, cls := range classes {
		if cls == nil {
			continue
		}
		if _, dup := c.classes[cls.ClassName]; dup {
			return nil, fmt.Errorf("%w: class %q declared twice", ErrInvalidSchema, cls.ClassName)
		}
		c.classes[cls.ClassName] = cls
		c.order = append(c.order, cls.ClassName)
	}
	for _, cls := range c.classes {
		for _, p := range cls.properties {
			if !p.Type.IsLink() {
				continue
			}
			if _, ok := c.classes[p.ObjectClass]; !ok {
				return nil, fmt.Errorf("%w: %s.%s links to unknown class %q", ErrInvalidSchema, cls.ClassName, p.Name, p.ObjectClass)
			}
		}
	}
	return c, nil
}

// Empty 返回空目录（未初始化的存储文件）
func Empty() *Catalog {
	return &Catalog{classes: map[string]*ObjectSchema{}}
}

// IsEmpty 是否不包含任何类
func (c *Catalog) IsEmpty() bool {
	return c == nil || len(c.order) == 0
}

// Class 按类名查找
func (c *Catalog) Class(name string) (*ObjectSchema, bool) {
	if c == nil {
		return nil, false
	}
	cls, ok := c.classes[name]
	return cls, ok
}

// Lookup 查找类，找不到时返回 ErrClassNotFound
func (c *Catalog) Lookup(name string) (*ObjectSchema, error) {
	cls, ok := c.Class(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return cls, nil
}

// MustClass 查找类，找不到时panic，仅用于已知存在的类
func (c *Catalog) MustClass(name string) *ObjectSchema {
	cls, err := c.Lookup(name)
	if err != nil {
		panic(err)
	}
	return cls
}

// Property 查找 class.prop，任一层找不到时返回对应的错误
func (c *Catalog) Property(className, propName string) (Property, error) {
	cls, err := c.Lookup(className)
	if err != nil {
		return Property{}, err
	}
	p, ok := cls.Property(propName)
	if !ok {
		return Property{}, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, className, propName)
	}
	return p, nil
}

// PropertyType 便捷方法：返回 class.prop 的类型
func (c *Catalog) PropertyType(className, propName string) (PropertyType, error) {
	p, err := c.Property(className, propName)
	if err != nil {
		return TypeInvalid, err
	}
	return p.Type, nil
}

// Names 类名列表，保持声明顺序
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Classes 类定义列表，保持声明顺序
func (c *Catalog) Classes() []*ObjectSchema {
	if c == nil {
		return nil
	}
	out := make([]*ObjectSchema, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.classes[name])
	}
	return out
}

// Equal 结构化比较，与类和属性的顺序无关
func (c *Catalog) Equal(other *Catalog) bool {
	if len(c.Names()) != len(other.Names()) {
		return false
	}
	for _, cls := range c.Classes() {
		o, ok := other.Class(cls.ClassName)
		if !ok || !cls.Equal(o) {
			return false
		}
	}
	return true
}
