package schema

import (
	"fmt"
	"sort"
)

// ChangeKind 结构差异类型
type ChangeKind int

const (
	ClassAdded ChangeKind = iota
	ClassRemoved
	PropertyAdded
	PropertyRemoved
	PropertyTypeChanged
	PropertyLinkChanged
	PropertyIndexChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ClassAdded:
		return "class_added"
	case ClassRemoved:
		return "class_removed"
	case PropertyAdded:
		return "property_added"
	case PropertyRemoved:
		return "property_removed"
	case PropertyTypeChanged:
		return "property_type_changed"
	case PropertyLinkChanged:
		return "property_link_changed"
	case PropertyIndexChanged:
		return "property_index_changed"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Change 一条结构差异；类级差异的 Property 为空
type Change struct {
	Kind      ChangeKind
	ClassName string
	Property  string
	Old       Property
	New       Property
}

func (c Change) String() string {
	switch c.Kind {
	case ClassAdded, ClassRemoved:
		return fmt.Sprintf("%s %s", c.Kind, c.ClassName)
	case PropertyAdded:
		return fmt.Sprintf("%s %s.%s (%s)", c.Kind, c.ClassName, c.Property, c.New.Type)
	case PropertyRemoved:
		return fmt.Sprintf("%s %s.%s (%s)", c.Kind, c.ClassName, c.Property, c.Old.Type)
	case PropertyTypeChanged:
		return fmt.Sprintf("%s %s.%s %s -> %s", c.Kind, c.ClassName, c.Property, c.Old.Type, c.New.Type)
	case PropertyLinkChanged:
		return fmt.Sprintf("%s %s.%s %s -> %s", c.Kind, c.ClassName, c.Property, c.Old.ObjectClass, c.New.ObjectClass)
	default:
		return fmt.Sprintf("%s %s.%s %t -> %t", c.Kind, c.ClassName, c.Property, c.Old.Indexed, c.New.Indexed)
	}
}

// Diff 按名称比较两个目录。类型变化按属性单独报告，不拆成删除+新增。
// 结果按类名、再按属性名排序，nil 目录视为空目录。
func Diff(from, to *Catalog) []Change {
	var changes []Change

	for _, name := range unionNames(from, to) {
		oldClass, inOld := from.Class(name)
		newClass, inNew := to.Class(name)
		switch {
		case !inOld:
			changes = append(changes, Change{Kind: ClassAdded, ClassName: name})
		case !inNew:
			changes = append(changes, Change{Kind: ClassRemoved, ClassName: name})
		default:
			changes = append(changes, diffClass(oldClass, newClass)...)
		}
	}
	return changes
}

func diffClass(from, to *ObjectSchema) []Change {
	var changes []Change
	for _, name := range unionProperties(from, to) {
		op, inOld := from.Property(name)
		np, inNew := to.Property(name)
		base := Change{ClassName: from.ClassName, Property: name, Old: op, New: np}
		switch {
		case !inOld:
			base.Kind = PropertyAdded
			changes = append(changes, base)
		case !inNew:
			base.Kind = PropertyRemoved
			changes = append(changes, base)
		case op.Type != np.Type:
			base.Kind = PropertyTypeChanged
			changes = append(changes, base)
		default:
			if op.ObjectClass != np.ObjectClass {
				c := base
				c.Kind = PropertyLinkChanged
				changes = append(changes, c)
			}
			if op.Indexed != np.Indexed {
				c := base
				c.Kind = PropertyIndexChanged
				changes = append(changes, c)
			}
		}
	}
	return changes
}

func unionNames(a, b *Catalog) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, c := range []*Catalog{a, b} {
		if c == nil {
			continue
		}
		for _, n := range c.Names() {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

func unionProperties(a, b *ObjectSchema) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, s := range []*ObjectSchema{a, b} {
		for _, p := range s.properties {
			if _, ok := seen[p.Name]; !ok {
				seen[p.Name] = struct{}{}
				names = append(names, p.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}
