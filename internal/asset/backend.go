package asset

import "context"

type Variant struct {
	Name string
	// Path is the local file of the variant.
	Path string
	// Key is the remote object key of the variant.
	Key string
}

// Backend is the storage strategy a Record delegates to after its local
// filesystem work.
type Backend interface {
	// Check fails when the backend is not usable, before Save or Delete do
	// any I/O.
	Check() error
	// Persists reports whether Save and Delete touch the filesystem at all.
	Persists() bool
	AfterSave(ctx context.Context, r *Record, variants []Variant) error
	AfterDelete(ctx context.Context, r *Record, variants []Variant) error
	URL(r *Record, variant string) (string, error)
}

// Local keeps variants on the filesystem only.
type Local struct{}

func (Local) Check() error   { return nil }
func (Local) Persists() bool { return true }

func (Local) AfterSave(context.Context, *Record, []Variant) error   { return nil }
func (Local) AfterDelete(context.Context, *Record, []Variant) error { return nil }

func (Local) URL(r *Record, variant string) (string, error) {
	return r.Layout().URL(variant)
}

// Null turns Save and Delete into no-ops. URLs are still derived as for Local.
type Null struct{}

func (Null) Check() error   { return nil }
func (Null) Persists() bool { return false }

func (Null) AfterSave(context.Context, *Record, []Variant) error   { return nil }
func (Null) AfterDelete(context.Context, *Record, []Variant) error { return nil }

func (Null) URL(r *Record, variant string) (string, error) {
	return r.Layout().URL(variant)
}
