package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PropertyDescriptor 代码或文件中声明的属性
type PropertyDescriptor struct {
	Name        string       `yaml:"name"`
	Type        PropertyType `yaml:"type"`
	ObjectClass string       `yaml:"object_class,omitempty"`
	Indexed     bool         `yaml:"indexed,omitempty"`
}

// ClassDescriptor 代码或文件中声明的类
type ClassDescriptor struct {
	Name       string               `yaml:"name"`
	Properties []PropertyDescriptor `yaml:"properties"`
}

// Document schema YAML 文件的顶层结构
type Document struct {
	Version Version           `yaml:"version,omitempty"`
	Classes []ClassDescriptor `yaml:"classes"`
}

// FromDeclared 由声明的类列表构建目录
func FromDeclared(classes ...ClassDescriptor) (*Catalog, error) {
	schemas := make([]*ObjectSchema, 0, len(classes))
	for _, cd := range classes {
		props := make([]Property, 0, len(cd.Properties))
		for _, pd := range cd.Properties {
			props = append(props, Property{
				Name:        pd.Name,
				Type:        pd.Type,
				ObjectClass: pd.ObjectClass,
				Indexed:     pd.Indexed,
			})
		}
		cls, err := NewObjectSchema(cd.Name, props...)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, cls)
	}
	return NewCatalog(schemas...)
}

// MustFromDeclared 构建目录，失败时panic
func MustFromDeclared(classes ...ClassDescriptor) *Catalog {
	c, err := FromDeclared(classes...)
	if err != nil {
		panic(fmt.Sprintf("failed to build catalog: %v", err))
	}
	return c
}

// Describe 将目录转换回声明形式，便于输出为 YAML
func Describe(c *Catalog) []ClassDescriptor {
	out := make([]ClassDescriptor, 0, len(c.Names()))
	for _, cls := range c.Classes() {
		cd := ClassDescriptor{Name: cls.ClassName}
		for _, p := range cls.Properties() {
			cd.Properties = append(cd.Properties, PropertyDescriptor{
				Name:        p.Name,
				Type:        p.Type,
				ObjectClass: p.ObjectClass,
				Indexed:     p.Indexed,
			})
		}
		out = append(out, cd)
	}
	return out
}

// ParseYAML 解析 schema 文档，返回目录与文档中声明的版本号
func ParseYAML(b []byte) (*Catalog, Version, error) {
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	c, err := FromDeclared(doc.Classes...)
	if err != nil {
		return nil, 0, err
	}
	return c, doc.Version, nil
}

// LoadFile 从文件读取 schema 文档
func LoadFile(file string) (*Catalog, Version, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, 0, fmt.Errorf("can't open schema file %s: %w", file, err)
	}
	return ParseYAML(b)
}

// MarshalYAML 将目录编码为 schema 文档
func MarshalYAML(c *Catalog, version Version) ([]byte, error) {
	return yaml.Marshal(Document{Version: version, Classes: Describe(c)})
}
