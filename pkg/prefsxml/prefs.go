// Package prefsxml reads and writes SharedPreferences-style XML files:
//
//	<map>
//	  <string name="key">value</string>
//	  <boolean name="flag" value="true" />
//	  <int name="size" value="15" />
//	  <set name="patterns"><string>a</string></set>
//	</map>
package prefsxml

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/beevik/etree"
)

const rootElement = "map"

// File wraps an etree Document holding one preferences map.
type File struct {
	doc  *etree.Document
	path string
	root *etree.Element
}

// Open reads a preferences file from disk. If the file doesn't exist,
// an empty map is returned and created on Save.
func Open(path string) (*File, error) {
	doc := etree.NewDocument()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		doc.CreateProcInst("xml", `version='1.0' encoding='utf-8' standalone='yes'`)
		root := doc.CreateElement(rootElement)
		return &File{doc: doc, path: path, root: root}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != rootElement {
		return nil, fmt.Errorf("no <%s> root element in %s", rootElement, path)
	}

	return &File{doc: doc, path: path, root: root}, nil
}

// entry finds the child carrying name="name", or nil.
func (f *File) entry(name string) *etree.Element {
	for _, el := range f.root.ChildElements() {
		if el.SelectAttrValue("name", "") == name {
			return el
		}
	}
	return nil
}

// replace drops any existing entry for name and appends a fresh one.
func (f *File) replace(tag, name string) *etree.Element {
	if existing := f.entry(name); existing != nil {
		f.root.RemoveChild(existing)
	}
	el := f.root.CreateElement(tag)
	el.CreateAttr("name", name)
	return el
}

// Has reports whether name is present with any type.
func (f *File) Has(name string) bool {
	return f.entry(name) != nil
}

// Remove deletes name if present.
func (f *File) Remove(name string) {
	if el := f.entry(name); el != nil {
		f.root.RemoveChild(el)
	}
}

// GetString returns a <string> entry.
func (f *File) GetString(name string) (string, bool) {
	el := f.entry(name)
	if el == nil || el.Tag != "string" {
		return "", false
	}
	return el.Text(), true
}

// SetString stores a <string> entry.
func (f *File) SetString(name, value string) {
	f.replace("string", name).SetText(value)
}

// GetBool returns a <boolean> entry.
func (f *File) GetBool(name string) (bool, bool) {
	el := f.entry(name)
	if el == nil || el.Tag != "boolean" {
		return false, false
	}
	v, err := strconv.ParseBool(el.SelectAttrValue("value", ""))
	if err != nil {
		return false, false
	}
	return v, true
}

// SetBool stores a <boolean> entry.
func (f *File) SetBool(name string, value bool) {
	f.replace("boolean", name).CreateAttr("value", strconv.FormatBool(value))
}

// GetInt returns an <int> entry.
func (f *File) GetInt(name string) (int, bool) {
	el := f.entry(name)
	if el == nil || el.Tag != "int" {
		return 0, false
	}
	v, err := strconv.Atoi(el.SelectAttrValue("value", ""))
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetInt stores an <int> entry.
func (f *File) SetInt(name string, value int) {
	f.replace("int", name).CreateAttr("value", strconv.Itoa(value))
}

// GetStringSet returns the members of a <set> entry in file order.
func (f *File) GetStringSet(name string) ([]string, bool) {
	el := f.entry(name)
	if el == nil || el.Tag != "set" {
		return nil, false
	}
	var values []string
	for _, child := range el.SelectElements("string") {
		values = append(values, child.Text())
	}
	return values, true
}

// SetStringSet stores a <set> entry with one <string> child per value.
func (f *File) SetStringSet(name string, values []string) {
	el := f.replace("set", name)
	for _, v := range values {
		el.CreateElement("string").SetText(v)
	}
}

// Save writes the document back to disk. The write goes through a
// temporary file so readers never see a partial document.
func (f *File) Save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f.doc.Indent(4)
	tmp := f.path + ".tmp"
	if err := f.doc.WriteToFile(tmp); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
