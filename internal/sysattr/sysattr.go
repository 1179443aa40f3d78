// Package sysattr models a device node carrying a group of text attributes,
// read and written the way sysfs attribute files are.
package sysattr

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNoAttribute   = errors.New("no such attribute")
	ErrPermission    = errors.New("permission denied")
	ErrNotRegistered = errors.New("device not registered")
)

const (
	// ModeWorldRW is S_IRUGO|S_IWUGO.
	ModeWorldRW  os.FileMode = 0o666
	ModeReadOnly os.FileMode = 0o444
)

// Attribute is one attribute file. Show renders the current value; Store
// consumes a write and reports how many bytes it used.
type Attribute struct {
	Name  string
	Mode  os.FileMode
	Show  func() string
	Store func(buf string) (int, error)
}

func (a Attribute) readable() bool { return a.Mode&0o444 != 0 && a.Show != nil }
func (a Attribute) writable() bool { return a.Mode&0o222 != 0 && a.Store != nil }

type Group struct {
	Attrs []Attribute
}

// Device is a named node. Every Show and Store runs with lock held, so
// attribute callbacks do not lock on their own.
type Device struct {
	name string
	lock sync.Locker

	mu         sync.RWMutex
	registered bool
	attrs      map[string]Attribute
}

// NewDevice returns an unregistered device. lock may be nil when callbacks
// need no serialisation.
func NewDevice(name string, lock sync.Locker) *Device {
	if lock == nil {
		lock = noLock{}
	}
	return &Device{name: name, lock: lock, attrs: map[string]Attribute{}}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Register() error {
	if strings.TrimSpace(d.name) == "" || strings.ContainsAny(d.name, "/ \t\n") {
		return fmt.Errorf("sysattr: invalid device name %q", d.name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered {
		return fmt.Errorf("sysattr: device %q already registered", d.name)
	}
	d.registered = true
	return nil
}

func (d *Device) Registered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.registered
}

// CreateGroup adds all attributes of g or none of them.
func (d *Device) CreateGroup(g Group) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.registered {
		return fmt.Errorf("sysattr: %s: %w", d.name, ErrNotRegistered)
	}

	seen := make(map[string]struct{}, len(g.Attrs))
	for _, a := range g.Attrs {
		if a.Name == "" || strings.ContainsAny(a.Name, "/ \t\n") {
			return fmt.Errorf("sysattr: %s: invalid attribute name %q", d.name, a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("sysattr: %s: duplicate attribute %q", d.name, a.Name)
		}
		if _, dup := d.attrs[a.Name]; dup {
			return fmt.Errorf("sysattr: %s: attribute %q already exists", d.name, a.Name)
		}
		if a.Show == nil && a.Store == nil {
			return fmt.Errorf("sysattr: %s: attribute %q has no callbacks", d.name, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	for _, a := range g.Attrs {
		d.attrs[a.Name] = a
	}
	return nil
}

// Attributes lists attribute names in order.
func (d *Device) Attributes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.attrs))
	for name := range d.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Device) lookup(name string) (Attribute, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.attrs[name]
	if !ok {
		return Attribute{}, fmt.Errorf("sysattr: %s/%s: %w", d.name, name, ErrNoAttribute)
	}
	return a, nil
}

// Mode reports the permission bits of an attribute.
func (d *Device) Mode(name string) (os.FileMode, error) {
	a, err := d.lookup(name)
	if err != nil {
		return 0, err
	}
	return a.Mode, nil
}

func (d *Device) Show(name string) (string, error) {
	a, err := d.lookup(name)
	if err != nil {
		return "", err
	}
	if !a.readable() {
		return "", fmt.Errorf("sysattr: read %s/%s: %w", d.name, name, ErrPermission)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return a.Show(), nil
}

func (d *Device) Store(name, buf string) (int, error) {
	a, err := d.lookup(name)
	if err != nil {
		return 0, err
	}
	if !a.writable() {
		return 0, fmt.Errorf("sysattr: write %s/%s: %w", d.name, name, ErrPermission)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return a.Store(buf)
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
