package configstore

// ConfigStore loads and saves configuration documents.
type ConfigStore interface {
	Load(out any) error
	Save(in any) error
}
