package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Resource groups keys for invalidation and metrics.
type Resource string

const (
	ResourceEvents      Resource = "events"
	ResourceDepartments Resource = "departments"
	ResourceFAQs        Resource = "faqs"
	ResourceGallery     Resource = "gallery"
	ResourceCMS         Resource = "cms"
)

// Key identifies one cached value. Keys are only built through the
// per-resource builders below, so two call sites cannot disagree on a
// key's shape.
type Key struct {
	resource Resource
	path     string
}

func newKey(r Resource, parts ...string) Key {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return Key{resource: r, path: strings.Join(escaped, "/")}
}

func (k Key) Resource() Resource { return k.resource }

func (k Key) String() string {
	if k.path == "" {
		return string(k.resource)
	}
	return string(k.resource) + ":" + k.path
}

func (k Key) IsZero() bool { return k.resource == "" }

type EventKeys struct{}

func Events() EventKeys { return EventKeys{} }

// List keys a filtered listing. Values are encoded in sorted key order.
func (EventKeys) List(filter url.Values) Key {
	return newKey(ResourceEvents, "list", filter.Encode())
}

func (EventKeys) ByID(id string) Key { return newKey(ResourceEvents, "id", id) }

func (EventKeys) Month(year, month int) Key {
	return newKey(ResourceEvents, "month", fmt.Sprintf("%04d-%02d", year, month))
}

func (EventKeys) Upcoming(limit int) Key {
	return newKey(ResourceEvents, "upcoming", fmt.Sprint(limit))
}

type DepartmentKeys struct{}

func Departments() DepartmentKeys { return DepartmentKeys{} }

func (DepartmentKeys) List() Key              { return newKey(ResourceDepartments, "list") }
func (DepartmentKeys) BySlug(slug string) Key { return newKey(ResourceDepartments, "slug", slug) }

type FAQKeys struct{}

func FAQs() FAQKeys { return FAQKeys{} }

func (FAQKeys) Published() Key { return newKey(ResourceFAQs, "published") }

type GalleryKeys struct{}

func Gallery() GalleryKeys { return GalleryKeys{} }

func (GalleryKeys) Album(album string) Key { return newKey(ResourceGallery, "album", album) }

type CMSKeys struct{}

func CMS() CMSKeys { return CMSKeys{} }

// Document keys one CMS query by document name and its parameters.
func (CMSKeys) Document(name string, params url.Values) Key {
	return newKey(ResourceCMS, name, params.Encode())
}
