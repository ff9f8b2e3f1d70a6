package migration

import (
	"fmt"
	"sync"

	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// EnumerateFunc 遍历回调。oldObj 是旧 schema 下的只读视图；
// newObj 已按新 schema 调整且可写，回调返回后被写回。类在新 schema 中被删除时 newObj 为 nil
type EnumerateFunc func(oldObj, newObj *object.Object) error

// Context 迁移回调的上下文，只在回调执行期间有效
type Context struct {
	OldSchema  *schema.Catalog
	NewSchema  *schema.Catalog
	OldVersion schema.Version
	NewVersion schema.Version

	tx      Transaction
	changes []schema.Change

	mu        sync.Mutex
	expired   bool
	snapshots map[string][]*object.Object
	written   map[string]*object.Object
	created   map[string]struct{}
	deleted   map[string]struct{}
	cleared   map[string]struct{}
}

func newContext(tx Transaction, oldSchema, newSchema *schema.Catalog, oldVersion, newVersion schema.Version) *Context {
	return &Context{
		OldSchema:  oldSchema,
		NewSchema:  newSchema,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		tx:         tx,
		changes:    schema.Diff(oldSchema, newSchema),
		snapshots:  make(map[string][]*object.Object),
		written:    make(map[string]*object.Object),
		created:    make(map[string]struct{}),
		deleted:    make(map[string]struct{}),
		cleared:    make(map[string]struct{}),
	}
}

// Changes 新旧 schema 的结构差异
func (c *Context) Changes() []schema.Change {
	out := make([]schema.Change, len(c.changes))
	copy(out, c.changes)
	return out
}

// Enumerate 遍历旧 schema 中 className 的全部对象。
// 类只存在于新 schema 时没有可遍历的对象；两边都不存在时返回 ErrClassNotFound
func (c *Context) Enumerate(className string, fn EnumerateFunc) error {
	oldClass, inOld := c.OldSchema.Class(className)
	newClass, inNew := c.NewSchema.Class(className)
	if !inOld && !inNew {
		return fmt.Errorf("%w: %s", schema.ErrClassNotFound, className)
	}
	if !inOld {
		return c.checkAlive()
	}

	objs, err := c.snapshot(oldClass)
	if err != nil {
		return err
	}

	for _, old := range objs {
		if c.isGone(className, old.ID) {
			continue
		}
		var next *object.Object
		if inNew {
			next, err = c.current(old, newClass)
			if err != nil {
				return err
			}
		}
		if err := fn(old, next); err != nil {
			return err
		}
		if next == nil || c.isGone(className, next.ID) {
			continue
		}
		if err := c.put(next); err != nil {
			return err
		}
	}
	return nil
}

// Create 按新 schema 创建对象并写入
func (c *Context) Create(className string, values map[string]any) (*object.Object, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	cls, err := c.NewSchema.Lookup(className)
	if err != nil {
		return nil, err
	}
	obj, err := object.New(cls, values)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.created[obj.ID] = struct{}{}
	c.mu.Unlock()
	if err := c.put(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Delete 删除对象
func (c *Context) Delete(obj *object.Object) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	if obj == nil {
		return nil
	}
	if err := c.tx.DeleteObject(obj.ClassName, obj.ID); err != nil {
		return err
	}
	c.mu.Lock()
	c.deleted[obj.ID] = struct{}{}
	delete(c.written, obj.ID)
	c.mu.Unlock()
	return nil
}

// DeleteData 删除类的全部对象
func (c *Context) DeleteData(className string) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	_, inOld := c.OldSchema.Class(className)
	_, inNew := c.NewSchema.Class(className)
	if !inOld && !inNew {
		return fmt.Errorf("%w: %s", schema.ErrClassNotFound, className)
	}
	if err := c.tx.DeleteClassData(className); err != nil {
		return err
	}
	c.mu.Lock()
	c.cleared[className] = struct{}{}
	for id, obj := range c.written {
		if obj.ClassName == className {
			delete(c.written, id)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Context) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired = true
}

func (c *Context) checkAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return ErrContextExpired
	}
	return nil
}

// snapshot 首次访问时读取旧对象，之后的遍历都基于同一份快照
func (c *Context) snapshot(oldClass *schema.ObjectSchema) ([]*object.Object, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	objs, ok := c.snapshots[oldClass.ClassName]
	c.mu.Unlock()
	if ok {
		return objs, nil
	}

	stored, err := c.tx.EnumerateObjects(oldClass.ClassName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	objs = make([]*object.Object, 0, len(stored))
	for _, obj := range stored {
		if _, isNew := c.created[obj.ID]; isNew {
			continue
		}
		objs = append(objs, obj.Freeze())
	}
	c.snapshots[oldClass.ClassName] = objs
	return objs, nil
}

func (c *Context) current(old *object.Object, newClass *schema.ObjectSchema) (*object.Object, error) {
	c.mu.Lock()
	prev, ok := c.written[old.ID]
	c.mu.Unlock()
	if ok {
		return prev, nil
	}
	return old.Conform(newClass)
}

func (c *Context) isGone(className, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cleared[className]; ok {
		return true
	}
	_, ok := c.deleted[id]
	return ok
}

func (c *Context) put(obj *object.Object) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	if err := c.tx.PutObject(obj); err != nil {
		return err
	}
	c.mu.Lock()
	c.written[obj.ID] = obj
	c.mu.Unlock()
	return nil
}
